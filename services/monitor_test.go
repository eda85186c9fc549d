package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquinMulet/depita-bot/models"
)

func newTestMonitor(store *fakeStore, notifier *fakeNotifier, thresholds map[string]time.Duration) *Monitor {
	m := NewMonitor(store, notifier, thresholds, testLogger())
	m.now = func() time.Time { return store.clock.Add(time.Hour) }
	return m
}

func TestMonitorReportsMissingExecution(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	m := newTestMonitor(store, notifier, map[string]time.Duration{models.ComponentScraper: 26 * time.Hour})

	findings, err := m.Check(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, models.ComponentScraper, findings[0].Component)
	assert.Len(t, notifier.alerts, 1)
}

func TestMonitorHealthyComponent(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	id, _ := store.LogStart(ctx, models.ComponentScraper)
	require.NoError(t, store.LogFinish(ctx, id, models.StatusSuccess, ""))

	notifier := newFakeNotifier()
	m := newTestMonitor(store, notifier, map[string]time.Duration{models.ComponentScraper: 26 * time.Hour})

	findings, err := m.Check(ctx)
	require.NoError(t, err)

	assert.Empty(t, findings)
	assert.Empty(t, notifier.alerts)
}

func TestMonitorReportsStaleExecution(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	id, _ := store.LogStart(ctx, models.ComponentScraper)
	require.NoError(t, store.LogFinish(ctx, id, models.StatusSuccess, ""))

	m := newTestMonitor(store, newFakeNotifier(), map[string]time.Duration{models.ComponentScraper: 30 * time.Minute})

	findings, err := m.Check(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Problem, "no se ejecuta desde")
}

func TestMonitorReportsFailedExecution(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	id, _ := store.LogStart(ctx, models.ComponentAnalyzer)
	require.NoError(t, store.LogFinish(ctx, id, models.StatusFailure, "boom"))

	notifier := newFakeNotifier()
	m := newTestMonitor(store, notifier, map[string]time.Duration{models.ComponentAnalyzer: 26 * time.Hour})

	findings, err := m.Check(ctx)
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Problem, "boom")
	require.Len(t, notifier.alerts, 1)
	assert.Contains(t, notifier.alerts[0], models.ComponentAnalyzer)
}
