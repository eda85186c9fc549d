// Package portal scrapes portalinmobiliario map-view search pages with a
// headless browser and turns the rendered HTML into raw listing records.
package portal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/config"
	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/utils"
)

const renderWait = 5 * time.Second

// nextPageJS clicks the "Siguiente" pagination control when it is present and
// enabled, reporting whether a click happened.
const nextPageJS = `
	(function() {
		var next = document.querySelector('li.andes-pagination__button--next:not(.andes-pagination__button--disabled) a') ||
		           document.querySelector('a[title="Siguiente"]');
		if (next) {
			next.click();
			return true;
		}
		return false;
	})()
`

// PageSource yields the rendered HTML of the current results page and moves
// to the next one. It exists so the pagination loop can be tested without a
// browser.
type PageSource interface {
	HTML(ctx context.Context) (string, error)
	// NextPage advances to the following results page, returning false when
	// no next-page control is available.
	NextPage(ctx context.Context) (bool, error)
}

// FailedURL records a target URL that exhausted its retries.
type FailedURL struct {
	URL string
	Err error
}

// Scraper drives the browser over the configured search URLs.
type Scraper struct {
	cfg   *config.Config
	log   zerolog.Logger
	retry *utils.RetryConfig
}

// New creates a ready-to-use Scraper.
func New(cfg *config.Config, log zerolog.Logger) *Scraper {
	return &Scraper{
		cfg: cfg,
		log: log,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Delay:       cfg.RetryDelay,
			Logger:      log,
		},
	}
}

// Scrape processes every configured URL sequentially. A URL that exhausts its
// retries is reported in the second return value and does not abort the rest.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.RawListing, []FailedURL) {
	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	s.log.Info().Str("chrome", chromeBin).Int("urls", len(s.cfg.ScrapeURLs)).Msg("starting scrape")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	allocCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelSilent()

	var all []*models.RawListing
	var failed []FailedURL

	for _, url := range s.cfg.ScrapeURLs {
		url := url
		var urlListings []*models.RawListing

		err := s.retry.Do("scrape-url", func() error {
			listings, err := s.scrapeURL(allocCtx, url)
			if err != nil {
				return err
			}
			urlListings = listings
			return nil
		})
		if err != nil {
			s.log.Error().Str("url", url).Err(err).Msg("url exhausted retries")
			failed = append(failed, FailedURL{URL: url, Err: err})
			continue
		}

		s.log.Info().Str("url", url).Int("listings", len(urlListings)).Msg("url done")
		all = append(all, urlListings...)
	}

	s.log.Info().Int("total", len(all)).Int("failed_urls", len(failed)).Msg("scrape complete")
	return all, failed
}

// scrapeURL navigates to one search URL and walks its result pages.
func (s *Scraper) scrapeURL(allocCtx context.Context, url string) ([]*models.RawListing, error) {
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// The per-page wait bounds each navigation; this caps a runaway
	// pagination walk for the whole URL.
	ctx, cancelTimeout := context.WithTimeout(ctx, 10*s.cfg.NavTimeout)
	defer cancelTimeout()

	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(renderWait),
	); err != nil {
		return nil, fmt.Errorf("portal: navigate %s: %w", url, err)
	}

	return collectPages(ctx, &chromePage{}, s.log)
}

// collectPages walks the result pages of one URL, collecting listings until a
// page past the first contributes zero previously-unseen links or no further
// page exists. The link set is scoped to this walk so one URL's results never
// cut another URL's pagination short.
func collectPages(ctx context.Context, src PageSource, log zerolog.Logger) ([]*models.RawListing, error) {
	var out []*models.RawListing
	seen := utils.NewLinkSet()

	for page := 1; ; page++ {
		html, err := src.HTML(ctx)
		if err != nil {
			return out, fmt.Errorf("portal: page %d: %w", page, err)
		}

		cards, err := ParseResults(html)
		if err != nil {
			return out, fmt.Errorf("portal: page %d: %w", page, err)
		}

		added := 0
		for _, card := range cards {
			if !seen.Add(card.Link) {
				continue
			}
			out = append(out, card)
			added++
		}

		log.Debug().Int("page", page).Int("cards", len(cards)).Int("new", added).Msg("page parsed")

		if page > 1 && added == 0 {
			break
		}

		ok, err := src.NextPage(ctx)
		if err != nil {
			return out, fmt.Errorf("portal: page %d next: %w", page, err)
		}
		if !ok {
			break
		}
	}

	return out, nil
}

// chromePage implements PageSource over an active chromedp tab.
type chromePage struct{}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) NextPage(ctx context.Context) (bool, error) {
	var clicked bool
	err := chromedp.Run(ctx,
		chromedp.Evaluate(nextPageJS, &clicked),
	)
	if err != nil {
		return false, err
	}
	if !clicked {
		return false, nil
	}
	return true, chromedp.Run(ctx, chromedp.Sleep(renderWait))
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
