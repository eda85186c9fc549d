package storage

import (
	"context"

	"github.com/JoaquinMulet/depita-bot/models"
)

// Tx is the set of operations available inside one transaction scope. Both
// engines run against this interface so they can be tested with fakes.
type Tx interface {
	// FindPropertyByIdentity looks a property up by its composite identity
	// key. The bool reports whether it exists.
	FindPropertyByIdentity(title string, identityPrice float64) (int64, bool, error)
	InsertProperty(p *models.Property) (int64, error)
	InsertObservation(o *models.Observation) (int64, error)

	FetchPendingObservations() ([]models.PendingObservation, error)
	InsertMetric(observationID int64, ufPerM2 float64) error
	CountObservations(propertyID int64) (int, error)
	// LastTwoPricesUF returns the normalized prices of a property's two most
	// recent observations, most recent first. An unpriced observation yields
	// a nil entry rather than being skipped, so the pair always reflects the
	// latest two sightings.
	LastTwoPricesUF(propertyID int64) ([]*float64, error)
	ClearNewFlags(observationIDs []int64) error
}

// Store is the persistence backend shared by all components.
type Store interface {
	// WithTx runs fn inside a single transaction; any error rolls everything
	// back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	LogStart(ctx context.Context, component string) (int64, error)
	LogFinish(ctx context.Context, id int64, status string, errMsg string) error
	LastExecution(ctx context.Context, component string) (*models.ExecutionRecord, error)

	Close() error
}
