package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/notify"
	"github.com/JoaquinMulet/depita-bot/storage"
	"github.com/JoaquinMulet/depita-bot/utils"
)

// Ingester resolves raw listings to canonical property identities and
// persists one observation per sighting.
//
// Identity is the composite key (trimmed title, price in UF rounded to two
// decimals): two listings with the same title and the same normalized price
// are the same property, whatever their links look like today.
type Ingester struct {
	store    storage.Store
	notifier notify.Notifier
	log      zerolog.Logger
}

// IngestSummary reports what one ingestion batch did.
type IngestSummary struct {
	Observations  int
	NewProperties int
	Skipped       int

	NotifyDelivered int
	NotifySkipped   int
	NotifyFailed    int
}

// NewIngester creates an Ingester.
func NewIngester(store storage.Store, notifier notify.Notifier, log zerolog.Logger) *Ingester {
	return &Ingester{store: store, notifier: notifier, log: log}
}

// Ingest runs one batch inside a single transaction. Listings that cannot be
// priced in UF are skipped; a storage error rolls the whole batch back.
// New-property notifications are dispatched only after the batch commits, so
// a rolled-back property is never announced.
func (in *Ingester) Ingest(ctx context.Context, listings []*models.RawListing, ufRate float64) (*IngestSummary, error) {
	if ufRate <= 0 {
		return nil, fmt.Errorf("ingest: invalid UF rate %.2f", ufRate)
	}

	summary := &IngestSummary{}
	var payloads []string

	err := in.store.WithTx(ctx, func(tx storage.Tx) error {
		for _, l := range listings {
			title := strings.TrimSpace(l.Title)

			priceUF, priceCLP, ok := normalizePrice(l, ufRate)
			if !ok {
				in.log.Warn().Str("title", title).Str("currency", l.Currency).
					Msg("listing cannot be priced in UF, skipping")
				summary.Skipped++
				continue
			}

			propertyID, found, err := tx.FindPropertyByIdentity(title, priceUF)
			if err != nil {
				return err
			}
			if !found {
				propertyID, err = tx.InsertProperty(&models.Property{
					Title:         title,
					Location:      l.Location,
					IdentityPrice: priceUF,
				})
				if err != nil {
					return err
				}
				summary.NewProperties++
				payloads = append(payloads, newPropertyMessage(l, title, priceUF))
			}

			obs := &models.Observation{
				PropertyID:    propertyID,
				PriceCLP:      priceCLP,
				PriceUF:       &priceUF,
				AreaM2:        l.AreaM2,
				Bedrooms:      l.Bedrooms,
				RawAttributes: l.RawAttributes,
				ImageURL:      l.ImageURL,
				Link:          l.Link,
				IsNew:         true,
			}
			if _, err := tx.InsertObservation(obs); err != nil {
				return err
			}
			summary.Observations++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	for _, payload := range payloads {
		res := in.notifier.Send(ctx, payload)
		switch res.Status {
		case notify.Delivered:
			summary.NotifyDelivered++
		case notify.Skipped:
			summary.NotifySkipped++
		case notify.Failed:
			summary.NotifyFailed++
			in.log.Error().Err(res.Err).Msg("new-property notification failed")
		}
	}

	in.log.Info().
		Int("observations", summary.Observations).
		Int("new_properties", summary.NewProperties).
		Int("skipped", summary.Skipped).
		Int("notify_failed", summary.NotifyFailed).
		Msg("ingestion batch done")

	return summary, nil
}

// normalizePrice converts the listing price to UF. CLP amounts are divided by
// the daily rate and rounded to two decimals; UF amounts pass through
// unchanged. Any other currency makes the listing unpriceable.
func normalizePrice(l *models.RawListing, ufRate float64) (priceUF float64, priceCLP *float64, ok bool) {
	switch l.Currency {
	case models.CurrencyCLP:
		clp := l.Amount
		return utils.Round2(l.Amount / ufRate), &clp, true
	case models.CurrencyUF:
		return l.Amount, nil, true
	default:
		return 0, nil, false
	}
}

func newPropertyMessage(l *models.RawListing, title string, priceUF float64) string {
	var b strings.Builder
	b.WriteString("🆕 *Nueva propiedad detectada*\n\n")
	fmt.Fprintf(&b, "🏠 [%s](%s)\n", notify.Escape(title), notify.EscapeLinkURL(l.Link))
	if l.Location != "" {
		fmt.Fprintf(&b, "📍 %s\n", notify.Escape(l.Location))
	}
	fmt.Fprintf(&b, "💰 *Precio:* %s UF\n", notify.Escape(utils.FormatChileanNumber(priceUF)))
	if l.AreaM2 != nil {
		fmt.Fprintf(&b, "📐 *Superficie:* %s m²\n", notify.Escape(utils.FormatChileanNumber(*l.AreaM2)))
	}
	return b.String()
}
