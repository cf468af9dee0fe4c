package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	forecast "bess-edge/internal/forecast/domain"
)

const defaultForecastsTable = "fact_forecasts"

// Repository persists multi-horizon forecasts.
type Repository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewRepository constructs a repository with default table name.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{db: db, table: defaultForecastsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertBatch upserts one row per (site, ts, horizon).
func (r *Repository) InsertBatch(ctx context.Context, forecasts []forecast.EnergyForecast) error {
	if r == nil || r.db == nil {
		return errors.New("forecast repo: nil db")
	}
	if len(forecasts) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	site_id,
	ts,
	horizon_min,
	predicted_soc_pct,
	time_to_empty_min,
	time_to_full_min,
	confidence_pct,
	available_energy_mwh,
	available_power_kw
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (site_id, ts, horizon_min)
DO UPDATE SET
	predicted_soc_pct = EXCLUDED.predicted_soc_pct,
	time_to_empty_min = EXCLUDED.time_to_empty_min,
	time_to_full_min = EXCLUDED.time_to_full_min,
	confidence_pct = EXCLUDED.confidence_pct,
	available_energy_mwh = EXCLUDED.available_energy_mwh,
	available_power_kw = EXCLUDED.available_power_kw`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range forecasts {
		if f.SiteID == "" || f.TS.IsZero() {
			_ = tx.Rollback()
			return errors.New("forecast repo: invalid forecast row")
		}

		timeToEmpty := sql.NullFloat64{}
		if f.TimeToEmptyMin != nil {
			timeToEmpty = sql.NullFloat64{Float64: *f.TimeToEmptyMin, Valid: true}
		}
		timeToFull := sql.NullFloat64{}
		if f.TimeToFullMin != nil {
			timeToFull = sql.NullFloat64{Float64: *f.TimeToFullMin, Valid: true}
		}

		if _, err := stmt.ExecContext(
			ctx,
			f.SiteID,
			f.TS,
			f.HorizonMin,
			f.PredictedSoCPct,
			timeToEmpty,
			timeToFull,
			f.ConfidencePct,
			f.AvailableEnergyMWh,
			f.AvailablePowerKW,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LatestSummary returns the newest forecast per site at the given horizon.
func (r *Repository) LatestSummary(ctx context.Context, horizonMin int) ([]forecast.EnergyForecast, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("forecast repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT ON (site_id)
	site_id, ts, horizon_min, predicted_soc_pct, time_to_empty_min,
	time_to_full_min, confidence_pct, available_energy_mwh, available_power_kw
FROM %s
WHERE horizon_min = $1
ORDER BY site_id, ts DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, horizonMin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []forecast.EnergyForecast
	for rows.Next() {
		var row forecast.EnergyForecast
		var timeToEmpty, timeToFull sql.NullFloat64
		if err := rows.Scan(
			&row.SiteID,
			&row.TS,
			&row.HorizonMin,
			&row.PredictedSoCPct,
			&timeToEmpty,
			&timeToFull,
			&row.ConfidencePct,
			&row.AvailableEnergyMWh,
			&row.AvailablePowerKW,
		); err != nil {
			return nil, err
		}
		if timeToEmpty.Valid {
			row.TimeToEmptyMin = &timeToEmpty.Float64
		}
		if timeToFull.Valid {
			row.TimeToFullMin = &timeToFull.Float64
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
