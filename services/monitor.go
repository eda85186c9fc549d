package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/notify"
	"github.com/JoaquinMulet/depita-bot/storage"
)

// Monitor checks that the scheduled components keep completing on time. It
// reads the execution log and mutates nothing.
type Monitor struct {
	store      storage.Store
	notifier   notify.Notifier
	log        zerolog.Logger
	thresholds map[string]time.Duration
	now        func() time.Time
}

// Finding describes one health problem detected by a check.
type Finding struct {
	Component string
	Problem   string
}

// NewMonitor creates a Monitor with per-component staleness thresholds.
func NewMonitor(store storage.Store, notifier notify.Notifier, thresholds map[string]time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:      store,
		notifier:   notifier,
		log:        log,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Check inspects the latest execution of every monitored component and raises
// one alert per finding. Alert delivery is best-effort.
func (m *Monitor) Check(ctx context.Context) ([]Finding, error) {
	components := make([]string, 0, len(m.thresholds))
	for name := range m.thresholds {
		components = append(components, name)
	}
	sort.Strings(components)

	var findings []Finding
	for _, name := range components {
		rec, err := m.store.LastExecution(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}

		if rec == nil {
			findings = append(findings, Finding{
				Component: name,
				Problem:   "no tiene ningún registro de ejecución",
			})
			continue
		}

		if age := m.now().Sub(rec.StartTime); age > m.thresholds[name] {
			findings = append(findings, Finding{
				Component: name,
				Problem: fmt.Sprintf("no se ejecuta desde %s, revisar el cron job",
					rec.StartTime.Format("2006-01-02 15:04")),
			})
		}

		if rec.Status == models.StatusFailure {
			problem := "la última ejecución falló"
			if rec.ErrorMessage != nil {
				problem = fmt.Sprintf("la última ejecución falló: %s", *rec.ErrorMessage)
			}
			findings = append(findings, Finding{Component: name, Problem: problem})
		}
	}

	for _, f := range findings {
		m.log.Warn().Str("monitored", f.Component).Msg(f.Problem)
		text := fmt.Sprintf("MONITOR: `%s` %s", f.Component, notify.Escape(f.Problem))
		if res := m.notifier.Alert(ctx, text); res.Status == notify.Failed {
			m.log.Error().Err(res.Err).Msg("monitor alert delivery failed")
		}
	}

	if len(findings) == 0 {
		m.log.Info().Msg("all monitored components healthy")
	}
	return findings, nil
}
