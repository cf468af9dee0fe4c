package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	signal "bess-edge/internal/signal/domain"
)

const defaultSignalsTable = "fact_corrected_signals"

// Repository persists corrected signals and serves latest-per-site reads.
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
	repo := &Repository{db: db, table: defaultSignalsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert upserts one corrected-signal row per (site, ts).
func (r *Repository) Insert(ctx context.Context, signals signal.CorrectedSignals) error {
	if r == nil || r.db == nil {
		return errors.New("signal repo: nil db")
	}
	if signals.SiteID == "" || signals.TS.IsZero() {
		return errors.New("signal repo: invalid signals row")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	site_id,
	ts,
	soc_pct_raw,
	soc_pct_corrected,
	soe_mwh_corrected,
	sop_charge_kw,
	sop_discharge_kw,
	hsl_soc_pct,
	lsl_soc_pct,
	signal_trust_score,
	drift_detected,
	correction_applied
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
ON CONFLICT (site_id, ts)
DO UPDATE SET
	soc_pct_corrected = EXCLUDED.soc_pct_corrected,
	soe_mwh_corrected = EXCLUDED.soe_mwh_corrected,
	sop_charge_kw = EXCLUDED.sop_charge_kw,
	sop_discharge_kw = EXCLUDED.sop_discharge_kw,
	hsl_soc_pct = EXCLUDED.hsl_soc_pct,
	lsl_soc_pct = EXCLUDED.lsl_soc_pct,
	signal_trust_score = EXCLUDED.signal_trust_score,
	drift_detected = EXCLUDED.drift_detected,
	correction_applied = EXCLUDED.correction_applied`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		signals.SiteID,
		signals.TS,
		signals.SoCPctRaw,
		signals.SoCPctCorrected,
		signals.SoEMWhCorrected,
		signals.SoPChargeKW,
		signals.SoPDischargeKW,
		signals.HSLSoCPct,
		signals.LSLSoCPct,
		signals.TrustScore,
		signals.DriftDetected,
		signals.CorrectionApplied,
	)
	return err
}

// LatestPerSite returns the newest corrected signals for every site.
func (r *Repository) LatestPerSite(ctx context.Context) ([]signal.CorrectedSignals, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("signal repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT ON (site_id)
	site_id, ts, soc_pct_raw, soc_pct_corrected, soe_mwh_corrected,
	sop_charge_kw, sop_discharge_kw, hsl_soc_pct, lsl_soc_pct,
	signal_trust_score, drift_detected, correction_applied
FROM %s
ORDER BY site_id, ts DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []signal.CorrectedSignals
	for rows.Next() {
		var row signal.CorrectedSignals
		if err := rows.Scan(
			&row.SiteID,
			&row.TS,
			&row.SoCPctRaw,
			&row.SoCPctCorrected,
			&row.SoEMWhCorrected,
			&row.SoPChargeKW,
			&row.SoPDischargeKW,
			&row.HSLSoCPct,
			&row.LSLSoCPct,
			&row.TrustScore,
			&row.DriftDetected,
			&row.CorrectionApplied,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
