package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/JoaquinMulet/depita-bot/models"
)

// Postgres implements Store on top of PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection, waits for the server to become reachable,
// runs schema migrations, and returns a ready-to-use store.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pg := &Postgres{db: db}
	if err := pg.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pg, nil
}

func (pg *Postgres) migrate() error {
	_, err := pg.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id             SERIAL PRIMARY KEY,
			title          TEXT          NOT NULL,
			location       TEXT          NOT NULL DEFAULT '',
			identity_price NUMERIC(12,2) NOT NULL,
			created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			UNIQUE (title, identity_price)
		);

		CREATE TABLE IF NOT EXISTS observations (
			id             SERIAL PRIMARY KEY,
			property_id    INTEGER       NOT NULL REFERENCES properties(id),
			price_clp      NUMERIC(16,2),
			price_uf       NUMERIC(12,2),
			area_m2        NUMERIC(10,2),
			bedrooms       INTEGER,
			raw_attributes TEXT          NOT NULL DEFAULT '',
			image_url      TEXT          NOT NULL DEFAULT '',
			link           TEXT          NOT NULL DEFAULT '',
			is_new         BOOLEAN       NOT NULL DEFAULT TRUE,
			observed_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_observations_property ON observations(property_id);
		CREATE INDEX IF NOT EXISTS idx_observations_is_new   ON observations(is_new) WHERE is_new;

		CREATE TABLE IF NOT EXISTS historical_metrics (
			id             SERIAL PRIMARY KEY,
			observation_id INTEGER       NOT NULL REFERENCES observations(id),
			uf_per_m2      NUMERIC(10,2) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS execution_log (
			id            SERIAL PRIMARY KEY,
			component     TEXT        NOT NULL,
			status        TEXT        NOT NULL,
			start_time    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_time      TIMESTAMPTZ,
			error_message TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_execution_log_component ON execution_log(component, start_time DESC);
	`)
	return err
}

// WithTx runs fn inside one transaction, rolling back on any error.
func (pg *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := pg.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("postgres: rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// LogStart inserts a STARTED row and returns its id.
func (pg *Postgres) LogStart(ctx context.Context, component string) (int64, error) {
	var id int64
	err := pg.db.QueryRowContext(ctx, `
		INSERT INTO execution_log (component, status, start_time)
		VALUES ($1, $2, NOW())
		RETURNING id
	`, component, models.StatusStarted).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: log start: %w", err)
	}
	return id, nil
}

// LogFinish records the terminal status of a run.
func (pg *Postgres) LogFinish(ctx context.Context, id int64, status string, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := pg.db.ExecContext(ctx, `
		UPDATE execution_log SET end_time = NOW(), status = $1, error_message = $2
		WHERE id = $3
	`, status, msg, id)
	if err != nil {
		return fmt.Errorf("postgres: log finish: %w", err)
	}
	return nil
}

// LastExecution returns the most recent log row for a component, or nil if
// the component has never run.
func (pg *Postgres) LastExecution(ctx context.Context, component string) (*models.ExecutionRecord, error) {
	rec := &models.ExecutionRecord{}
	var endTime sql.NullTime
	var errMsg sql.NullString

	err := pg.db.QueryRowContext(ctx, `
		SELECT id, component, status, start_time, end_time, error_message
		FROM execution_log
		WHERE component = $1
		ORDER BY start_time DESC
		LIMIT 1
	`, component).Scan(&rec.ID, &rec.Component, &rec.Status, &rec.StartTime, &endTime, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: last execution: %w", err)
	}

	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	if errMsg.Valid {
		rec.ErrorMessage = &errMsg.String
	}
	return rec, nil
}

func (pg *Postgres) Close() error {
	return pg.db.Close()
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) FindPropertyByIdentity(title string, identityPrice float64) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id FROM properties WHERE title = $1 AND identity_price = $2
	`, title, identityPrice).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: find property: %w", err)
	}
	return id, true, nil
}

func (t *pgTx) InsertProperty(p *models.Property) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		INSERT INTO properties (title, location, identity_price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, p.Title, p.Location, p.IdentityPrice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert property: %w", err)
	}
	return id, nil
}

func (t *pgTx) InsertObservation(o *models.Observation) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		INSERT INTO observations
			(property_id, price_clp, price_uf, area_m2, bedrooms, raw_attributes, image_url, link, is_new)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id
	`, o.PropertyID, nullFloat(o.PriceCLP), nullFloat(o.PriceUF), nullFloat(o.AreaM2),
		nullInt(o.Bedrooms), o.RawAttributes, o.ImageURL, o.Link).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert observation: %w", err)
	}
	return id, nil
}

func (t *pgTx) FetchPendingObservations() ([]models.PendingObservation, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT o.id, o.property_id, p.title, p.location, o.link, o.price_uf, o.area_m2
		FROM observations o
		JOIN properties p ON p.id = o.property_id
		WHERE o.is_new
		ORDER BY o.id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch pending: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingObservation
	for rows.Next() {
		var po models.PendingObservation
		var priceUF, areaM2 sql.NullFloat64
		if err := rows.Scan(&po.ObservationID, &po.PropertyID, &po.Title, &po.Location,
			&po.Link, &priceUF, &areaM2); err != nil {
			return nil, fmt.Errorf("postgres: scan pending: %w", err)
		}
		if priceUF.Valid {
			po.PriceUF = &priceUF.Float64
		}
		if areaM2.Valid {
			po.AreaM2 = &areaM2.Float64
		}
		pending = append(pending, po)
	}
	return pending, rows.Err()
}

func (t *pgTx) InsertMetric(observationID int64, ufPerM2 float64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO historical_metrics (observation_id, uf_per_m2) VALUES ($1, $2)
	`, observationID, ufPerM2)
	if err != nil {
		return fmt.Errorf("postgres: insert metric: %w", err)
	}
	return nil
}

func (t *pgTx) CountObservations(propertyID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT COUNT(*) FROM observations WHERE property_id = $1
	`, propertyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count observations: %w", err)
	}
	return n, nil
}

func (t *pgTx) LastTwoPricesUF(propertyID int64) ([]*float64, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT price_uf FROM observations
		WHERE property_id = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT 2
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("postgres: last prices: %w", err)
	}
	defer rows.Close()

	var prices []*float64
	for rows.Next() {
		var p sql.NullFloat64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		if p.Valid {
			v := p.Float64
			prices = append(prices, &v)
		} else {
			prices = append(prices, nil)
		}
	}
	return prices, rows.Err()
}

func (t *pgTx) ClearNewFlags(observationIDs []int64) error {
	if len(observationIDs) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE observations SET is_new = FALSE WHERE id = ANY($1)
	`, pq.Array(observationIDs))
	if err != nil {
		return fmt.Errorf("postgres: clear flags: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
