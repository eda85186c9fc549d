package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/notify"
	"github.com/JoaquinMulet/depita-bot/storage"
	"github.com/JoaquinMulet/depita-bot/utils"
)

// How many new-property lines the digest carries before it truncates.
const digestMaxProperties = 10

// Analyzer consumes the observations flagged as new, derives per-observation
// metrics, classifies each affected property, and reports a digest.
//
// The read, the metric inserts and the flag clearing all happen inside one
// transaction: either a batch is fully processed or it is untouched, so no
// observation can be half-processed across runs.
type Analyzer struct {
	store    storage.Store
	notifier notify.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// AnalyzeSummary reports what one metrics pass did.
type AnalyzeSummary struct {
	// Empty is true when there was nothing to process.
	Empty bool

	Processed     int
	Metrics       int
	NewProperties int
	Updated       int
	PriceChanges  int

	ValidRows   int
	MeanPriceUF float64
	MeanUFPerM2 float64

	DigestResult notify.Result
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(store storage.Store, notifier notify.Notifier, log zerolog.Logger) *Analyzer {
	return &Analyzer{store: store, notifier: notifier, log: log, now: time.Now}
}

// Run executes one metrics pass. A zero-row pass returns Empty=true and is
// not an error. Digest delivery is best-effort and never aborts the pass.
func (a *Analyzer) Run(ctx context.Context) (*AnalyzeSummary, error) {
	summary := &AnalyzeSummary{DigestResult: notify.Result{Status: notify.Skipped, Reason: "nothing to report"}}

	err := a.store.WithTx(ctx, func(tx storage.Tx) error {
		pending, err := tx.FetchPendingObservations()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			summary.Empty = true
			return nil
		}
		summary.Processed = len(pending)

		var sumPrice, sumRatio float64
		for _, po := range pending {
			if po.PriceUF == nil || po.AreaM2 == nil || *po.AreaM2 <= 0 {
				continue
			}
			ratio := utils.Round2(*po.PriceUF / *po.AreaM2)
			if err := tx.InsertMetric(po.ObservationID, ratio); err != nil {
				return err
			}
			summary.Metrics++
			summary.ValidRows++
			sumPrice += *po.PriceUF
			sumRatio += ratio
		}
		if summary.ValidRows > 0 {
			summary.MeanPriceUF = utils.Round2(sumPrice / float64(summary.ValidRows))
			summary.MeanUFPerM2 = utils.Round2(sumRatio / float64(summary.ValidRows))
		}

		// Classify each affected property by its total observation count,
		// not just this batch.
		var newLines []string
		visited := make(map[int64]bool)
		for _, po := range pending {
			if visited[po.PropertyID] {
				continue
			}
			visited[po.PropertyID] = true

			total, err := tx.CountObservations(po.PropertyID)
			if err != nil {
				return err
			}
			if total == 1 {
				summary.NewProperties++
				if len(newLines) < digestMaxProperties {
					newLines = append(newLines, digestPropertyLine(po))
				}
				continue
			}

			summary.Updated++
			prices, err := tx.LastTwoPricesUF(po.PropertyID)
			if err != nil {
				return err
			}
			// A nil endpoint means the latest or the previous sighting had
			// no price, so no change is detectable for that pair.
			if len(prices) == 2 && prices[0] != nil && prices[1] != nil && *prices[0] != *prices[1] {
				summary.PriceChanges++
			}
		}

		summary.DigestResult = a.notifier.Send(ctx, buildDigest(summary, newLines, a.now()))
		if summary.DigestResult.Status == notify.Failed {
			a.log.Error().Err(summary.DigestResult.Err).Msg("digest delivery failed")
		}

		ids := make([]int64, 0, len(pending))
		for _, po := range pending {
			ids = append(ids, po.ObservationID)
		}
		return tx.ClearNewFlags(ids)
	})
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	if summary.Empty {
		a.log.Info().Msg("no new observations, nothing to do")
		return summary, nil
	}

	a.log.Info().
		Int("processed", summary.Processed).
		Int("metrics", summary.Metrics).
		Int("new_properties", summary.NewProperties).
		Int("updated", summary.Updated).
		Int("price_changes", summary.PriceChanges).
		Msg("metrics pass done")

	return summary, nil
}

func digestPropertyLine(po models.PendingObservation) string {
	price := "precio desconocido"
	if po.PriceUF != nil {
		price = notify.Escape(utils.FormatChileanNumber(*po.PriceUF)) + " UF"
	}
	return fmt.Sprintf("🏠 [%s](%s) · %s", notify.Escape(po.Title), notify.EscapeLinkURL(po.Link), price)
}

// buildDigest renders the batch digest in Telegram MarkdownV2, with every
// piece of variable text escaped.
func buildDigest(s *AnalyzeSummary, newLines []string, when time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 *Resumen de propiedades* · %s\n\n", notify.Escape(spanishDate(when)))
	fmt.Fprintf(&b, "🆕 Propiedades nuevas: %d\n", s.NewProperties)
	fmt.Fprintf(&b, "🔁 Actualizaciones: %d\n", s.Updated)
	fmt.Fprintf(&b, "💲 Cambios de precio: %d\n", s.PriceChanges)

	if s.ValidRows > 0 {
		fmt.Fprintf(&b, "📈 Precio promedio: %s UF\n", notify.Escape(utils.FormatChileanNumber(s.MeanPriceUF)))
		fmt.Fprintf(&b, "📐 Promedio UF/m²: %s\n", notify.Escape(utils.FormatChileanNumber(s.MeanUFPerM2)))
	}

	if len(newLines) > 0 {
		b.WriteString("\n")
		for _, line := range newLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		if s.NewProperties > len(newLines) {
			fmt.Fprintf(&b, "… y %d más\n", s.NewProperties-len(newLines))
		}
	}

	return b.String()
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

func spanishDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}
