package portal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/utils"
)

var (
	// bedroomsRegexp captures "3 dormitorios" style attribute text.
	bedroomsRegexp = regexp.MustCompile(`(\d+)\s+dormitorio`)
	// areaRegexp captures "68 m² útiles" / "120,5 m²" style attribute text.
	areaRegexp = regexp.MustCompile(`([\d.,]+)\s*m²`)
)

// ParseResults extracts the listing cards from one rendered results page.
// A card that cannot be parsed is dropped; the rest of the page survives.
func ParseResults(html string) ([]*models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("portal: parse page: %w", err)
	}

	cards := doc.Find("li.ui-search-layout__item")
	if cards.Length() == 0 {
		cards = doc.Find("div.ui-search-result__wrapper")
	}

	var listings []*models.RawListing
	cards.Each(func(_ int, card *goquery.Selection) {
		if l := parseCard(card); l != nil {
			listings = append(listings, l)
		}
	})
	return listings, nil
}

// parseCard turns one listing card into a RawListing, or nil when the card is
// missing the fields the pipeline cannot work without.
func parseCard(card *goquery.Selection) *models.RawListing {
	title := normalizeText(card.Find(".ui-search-item__title").First().Text())
	if title == "" {
		title = normalizeText(card.Find("h2").First().Text())
	}

	link, _ := card.Find("a.ui-search-link").First().Attr("href")
	if link == "" {
		link, _ = card.Find("a[href]").First().Attr("href")
	}

	currency := normalizeText(card.Find(".andes-money-amount__currency-symbol").First().Text())
	amountText := normalizeText(card.Find(".andes-money-amount__fraction").First().Text())

	if title == "" || link == "" || currency == "" || amountText == "" {
		return nil
	}

	amount, err := utils.ParseChileanNumber(amountText)
	if err != nil {
		return nil
	}

	location := normalizeText(card.Find(".ui-search-item__location").First().Text())

	var attrs []string
	card.Find("ul.ui-search-card-attributes li").Each(func(_ int, attr *goquery.Selection) {
		if text := normalizeText(attr.Text()); text != "" {
			attrs = append(attrs, text)
		}
	})
	rawAttributes := strings.Join(attrs, " · ")

	imageURL, _ := card.Find("img").First().Attr("data-src")
	if imageURL == "" {
		imageURL, _ = card.Find("img").First().Attr("src")
	}

	return &models.RawListing{
		Title:         title,
		Location:      location,
		Currency:      currency,
		Amount:        amount,
		AreaM2:        parseArea(rawAttributes),
		Bedrooms:      parseBedrooms(rawAttributes),
		RawAttributes: rawAttributes,
		ImageURL:      imageURL,
		Link:          link,
		ScrapedAt:     time.Now(),
	}
}

func parseArea(attrs string) *float64 {
	match := areaRegexp.FindStringSubmatch(attrs)
	if len(match) < 2 {
		return nil
	}
	area, err := utils.ParseChileanNumber(match[1])
	if err != nil || area <= 0 {
		return nil
	}
	return &area
}

func parseBedrooms(attrs string) *int {
	match := bedroomsRegexp.FindStringSubmatch(attrs)
	if len(match) < 2 {
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(match[1], "%d", &n); err != nil || n < 0 {
		return nil
	}
	return &n
}

// normalizeText strips leading/trailing whitespace and collapses internal
// whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
