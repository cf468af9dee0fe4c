package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	balancing "bess-edge/internal/balancing/domain"
)

const (
	defaultImbalanceTable = "fact_imbalance"
	defaultActionsTable   = "fact_balancing_actions"
)

// Repository persists rack imbalance results and balancing actions.
type Repository struct {
	db             *sql.DB
	imbalanceTable string
	actionsTable   string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithImbalanceTable overrides the imbalance table name.
func WithImbalanceTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.imbalanceTable = table
		}
	}
}

// WithActionsTable overrides the actions table name.
func WithActionsTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.actionsTable = table
		}
	}
}

// NewRepository constructs a repository with default table names.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		db:             db,
		imbalanceTable: defaultImbalanceTable,
		actionsTable:   defaultActionsTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertImbalance upserts one imbalance row per (site, rack, ts).
func (r *Repository) InsertImbalance(ctx context.Context, imbalance balancing.RackImbalance) error {
	if r == nil || r.db == nil {
		return errors.New("balancing repo: nil db")
	}
	if imbalance.SiteID == "" || imbalance.RackID == "" || imbalance.TS.IsZero() {
		return errors.New("balancing repo: invalid imbalance row")
	}
	if !imbalance.Severity.Valid() {
		return errors.New("balancing repo: invalid severity")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	site_id,
	rack_id,
	ts,
	imbalance_score,
	severity,
	max_cell_delta_mv,
	max_temp_delta_c,
	weakest_cell_id,
	strongest_cell_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (site_id, rack_id, ts)
DO UPDATE SET
	imbalance_score = EXCLUDED.imbalance_score,
	severity = EXCLUDED.severity,
	max_cell_delta_mv = EXCLUDED.max_cell_delta_mv,
	max_temp_delta_c = EXCLUDED.max_temp_delta_c,
	weakest_cell_id = EXCLUDED.weakest_cell_id,
	strongest_cell_id = EXCLUDED.strongest_cell_id`, r.imbalanceTable)

	_, err := r.db.ExecContext(
		ctx,
		query,
		imbalance.SiteID,
		imbalance.RackID,
		imbalance.TS,
		imbalance.ImbalanceScore,
		string(imbalance.Severity),
		imbalance.MaxCellDeltaMV,
		imbalance.MaxTempDeltaC,
		imbalance.WeakestCellID,
		imbalance.StrongestCellID,
	)
	return err
}

// InsertActions stores generated actions. Each must carry a host-assigned
// id and a valid priority.
func (r *Repository) InsertActions(ctx context.Context, actions []balancing.Action) error {
	if r == nil || r.db == nil {
		return errors.New("balancing repo: nil db")
	}
	if len(actions) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	action_id,
	site_id,
	rack_id,
	ts,
	action_type,
	priority,
	description,
	estimated_duration_min,
	estimated_recovery_mwh,
	status
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (action_id) DO NOTHING`, r.actionsTable)

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

	for _, action := range actions {
		if action.ActionID == "" || action.SiteID == "" || action.RackID == "" {
			_ = tx.Rollback()
			return errors.New("balancing repo: invalid action row")
		}
		if !action.Priority.Valid() {
			_ = tx.Rollback()
			return errors.New("balancing repo: invalid priority")
		}
		if _, err := stmt.ExecContext(
			ctx,
			action.ActionID,
			action.SiteID,
			action.RackID,
			action.TS,
			action.ActionType,
			string(action.Priority),
			action.Description,
			action.EstimatedDurationMin,
			action.EstimatedRecoveryMWh,
			action.Status,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// PendingActions lists pending actions ordered by priority then recency.
func (r *Repository) PendingActions(ctx context.Context) ([]balancing.Action, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("balancing repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT action_id, site_id, rack_id, ts, action_type, priority, description,
	estimated_duration_min, estimated_recovery_mwh, status
FROM %s
WHERE status = 'pending'
ORDER BY
	CASE priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END,
	ts DESC`, r.actionsTable)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []balancing.Action
	for rows.Next() {
		var action balancing.Action
		var priority string
		if err := rows.Scan(
			&action.ActionID,
			&action.SiteID,
			&action.RackID,
			&action.TS,
			&action.ActionType,
			&priority,
			&action.Description,
			&action.EstimatedDurationMin,
			&action.EstimatedRecoveryMWh,
			&action.Status,
		); err != nil {
			return nil, err
		}
		action.Priority = balancing.Priority(priority)
		result = append(result, action)
	}
	return result, rows.Err()
}

// UpdateActionStatus moves an action out of the pending queue.
func (r *Repository) UpdateActionStatus(ctx context.Context, actionID, status string) error {
	if r == nil || r.db == nil {
		return errors.New("balancing repo: nil db")
	}
	if actionID == "" || status == "" {
		return errors.New("balancing repo: empty action id or status")
	}

	query := fmt.Sprintf(`UPDATE %s SET status = $2 WHERE action_id = $1`, r.actionsTable)
	result, err := r.db.ExecContext(ctx, query, actionID, status)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("balancing repo: action not found")
	}
	return nil
}

// ImbalanceSummary aggregates recent imbalance per rack for the API.
type ImbalanceSummary struct {
	SiteID            string  `json:"site_id"`
	RackID            string  `json:"rack_id"`
	AvgImbalanceScore float64 `json:"avg_imbalance_score"`
	MaxImbalanceScore float64 `json:"max_imbalance_score"`
	CriticalCount     int     `json:"critical_count"`
	HighCount         int     `json:"high_count"`
}

// SummarizeRecent aggregates the trailing seven days of imbalance rows.
func (r *Repository) SummarizeRecent(ctx context.Context) ([]ImbalanceSummary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("balancing repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT
	site_id,
	rack_id,
	AVG(imbalance_score),
	MAX(imbalance_score),
	COUNT(CASE WHEN severity = 'critical' THEN 1 END),
	COUNT(CASE WHEN severity = 'high' THEN 1 END)
FROM %s
WHERE ts >= (SELECT MAX(ts) FROM %s) - INTERVAL '7 days'
GROUP BY site_id, rack_id
ORDER BY site_id, rack_id`, r.imbalanceTable, r.imbalanceTable)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ImbalanceSummary
	for rows.Next() {
		var summary ImbalanceSummary
		if err := rows.Scan(
			&summary.SiteID,
			&summary.RackID,
			&summary.AvgImbalanceScore,
			&summary.MaxImbalanceScore,
			&summary.CriticalCount,
			&summary.HighCount,
		); err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}
