package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoaquinMulet/depita-bot/models"
	"github.com/JoaquinMulet/depita-bot/notify"
	"github.com/JoaquinMulet/depita-bot/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeStore is an in-memory Store/Tx used to exercise the engines without a
// database. It does not simulate rollbacks; tests that force errors must not
// assert on state.
type fakeStore struct {
	properties   []*models.Property
	observations []*models.Observation
	metrics      []models.HistoricalMetric
	executions   map[string][]*models.ExecutionRecord
	nextID       int64
	clock        time.Time

	failInsertMetric bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions: make(map[string][]*models.ExecutionRecord),
		clock:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *fakeStore) WithTx(_ context.Context, fn func(storage.Tx) error) error {
	return fn(s)
}

func (s *fakeStore) LogStart(_ context.Context, component string) (int64, error) {
	rec := &models.ExecutionRecord{
		ID:        s.id(),
		Component: component,
		Status:    models.StatusStarted,
		StartTime: s.tick(),
	}
	s.executions[component] = append(s.executions[component], rec)
	return rec.ID, nil
}

func (s *fakeStore) LogFinish(_ context.Context, id int64, status string, errMsg string) error {
	for _, recs := range s.executions {
		for _, rec := range recs {
			if rec.ID == id {
				now := s.tick()
				rec.Status = status
				rec.EndTime = &now
				if errMsg != "" {
					rec.ErrorMessage = &errMsg
				}
				return nil
			}
		}
	}
	return fmt.Errorf("no execution record %d", id)
}

func (s *fakeStore) LastExecution(_ context.Context, component string) (*models.ExecutionRecord, error) {
	recs := s.executions[component]
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[len(recs)-1], nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) FindPropertyByIdentity(title string, identityPrice float64) (int64, bool, error) {
	for _, p := range s.properties {
		if p.Title == title && p.IdentityPrice == identityPrice {
			return p.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *fakeStore) InsertProperty(p *models.Property) (int64, error) {
	clone := *p
	clone.ID = s.id()
	clone.CreatedAt = s.tick()
	s.properties = append(s.properties, &clone)
	return clone.ID, nil
}

func (s *fakeStore) InsertObservation(o *models.Observation) (int64, error) {
	clone := *o
	clone.ID = s.id()
	clone.ObservedAt = s.tick()
	s.observations = append(s.observations, &clone)
	return clone.ID, nil
}

func (s *fakeStore) FetchPendingObservations() ([]models.PendingObservation, error) {
	var pending []models.PendingObservation
	for _, o := range s.observations {
		if !o.IsNew {
			continue
		}
		po := models.PendingObservation{
			ObservationID: o.ID,
			PropertyID:    o.PropertyID,
			Link:          o.Link,
			PriceUF:       o.PriceUF,
			AreaM2:        o.AreaM2,
		}
		for _, p := range s.properties {
			if p.ID == o.PropertyID {
				po.Title = p.Title
				po.Location = p.Location
			}
		}
		pending = append(pending, po)
	}
	return pending, nil
}

func (s *fakeStore) InsertMetric(observationID int64, ufPerM2 float64) error {
	if s.failInsertMetric {
		return fmt.Errorf("metric insert refused")
	}
	s.metrics = append(s.metrics, models.HistoricalMetric{
		ID:            s.id(),
		ObservationID: observationID,
		UFPerM2:       ufPerM2,
	})
	return nil
}

func (s *fakeStore) CountObservations(propertyID int64) (int, error) {
	n := 0
	for _, o := range s.observations {
		if o.PropertyID == propertyID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) LastTwoPricesUF(propertyID int64) ([]*float64, error) {
	var prices []*float64
	for i := len(s.observations) - 1; i >= 0 && len(prices) < 2; i-- {
		if o := s.observations[i]; o.PropertyID == propertyID {
			prices = append(prices, o.PriceUF)
		}
	}
	return prices, nil
}

func (s *fakeStore) ClearNewFlags(observationIDs []int64) error {
	flagged := make(map[int64]bool, len(observationIDs))
	for _, id := range observationIDs {
		flagged[id] = true
	}
	for _, o := range s.observations {
		if flagged[o.ID] {
			o.IsNew = false
		}
	}
	return nil
}

// addObservation seeds the store with a property observation, creating the
// property on first use.
func (s *fakeStore) addObservation(title string, priceUF *float64, areaM2 *float64, isNew bool) *models.Observation {
	var propertyID int64
	for _, p := range s.properties {
		if p.Title == title {
			propertyID = p.ID
		}
	}
	if propertyID == 0 {
		identity := 0.0
		if priceUF != nil {
			identity = *priceUF
		}
		propertyID, _ = s.InsertProperty(&models.Property{Title: title, IdentityPrice: identity})
	}

	o := &models.Observation{
		PropertyID: propertyID,
		PriceUF:    priceUF,
		AreaM2:     areaM2,
		Link:       "https://example.cl/" + title,
		IsNew:      isNew,
	}
	_, _ = s.InsertObservation(o)
	return s.observations[len(s.observations)-1]
}

// fakeNotifier records every outbound message.
type fakeNotifier struct {
	sent    []string
	alerts  []string
	outcome notify.Result
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{outcome: notify.Result{Status: notify.Delivered}}
}

func (n *fakeNotifier) Send(_ context.Context, text string) notify.Result {
	n.sent = append(n.sent, text)
	return n.outcome
}

func (n *fakeNotifier) Alert(_ context.Context, text string) notify.Result {
	n.alerts = append(n.alerts, text)
	return n.outcome
}
