package models

import "time"

// Run statuses recorded in the execution log.
const (
	StatusStarted      = "STARTED"
	StatusSuccess      = "SUCCESS"
	StatusSuccessEmpty = "SUCCESS_EMPTY"
	StatusFailure      = "FAILURE"
)

// Component names as they appear in the execution log.
const (
	ComponentScraper  = "scraper"
	ComponentAnalyzer = "analyzer"
	ComponentMonitor  = "monitor"
)

// Currency symbols as they appear on the listing cards.
const (
	CurrencyCLP = "$"
	CurrencyUF  = "UF"
)

// RawListing holds one listing card as extracted from a rendered results page,
// before identity resolution.
type RawListing struct {
	Title         string
	Location      string
	Currency      string
	Amount        float64
	AreaM2        *float64
	Bedrooms      *int
	RawAttributes string
	ImageURL      string
	Link          string
	ScrapedAt     time.Time
}

// Property is a canonical listing identity. The pair (Title, IdentityPrice) is
// unique; it is created on first sighting and never updated.
type Property struct {
	ID            int64
	Title         string
	Location      string
	IdentityPrice float64 // UF, rounded to 2 decimals at first sighting
	CreatedAt     time.Time
}

// Observation is one scrape-time sighting of a Property. Immutable except for
// the IsNew flag, which the analyzer flips to false exactly once.
type Observation struct {
	ID            int64
	PropertyID    int64
	PriceCLP      *float64
	PriceUF       *float64
	AreaM2        *float64
	Bedrooms      *int
	RawAttributes string
	ImageURL      string
	Link          string
	IsNew         bool
	ObservedAt    time.Time
}

// HistoricalMetric is a derived value computed from one Observation.
type HistoricalMetric struct {
	ID            int64
	ObservationID int64
	UFPerM2       float64
}

// PendingObservation is an unprocessed observation joined with its property,
// as fetched by the analyzer.
type PendingObservation struct {
	ObservationID int64
	PropertyID    int64
	Title         string
	Location      string
	Link          string
	PriceUF       *float64
	AreaM2        *float64
}

// ExecutionRecord is one row of the execution log.
type ExecutionRecord struct {
	ID           int64
	Component    string
	Status       string
	StartTime    time.Time
	EndTime      *time.Time
	ErrorMessage *string
}
