package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	insights "bess-edge/internal/insights/domain"
)

const defaultFindingsTable = "fact_insights_findings"

// Repository persists insight findings and their lifecycle flags.
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
	repo := &Repository{db: db, table: defaultFindingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertBatch stores generated findings. Each must carry a host-assigned id.
func (r *Repository) InsertBatch(ctx context.Context, findings []insights.Finding) error {
	if r == nil || r.db == nil {
		return errors.New("insights repo: nil db")
	}
	if len(findings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	finding_id,
	ts,
	site_id,
	category,
	severity,
	title,
	description,
	recommendation,
	estimated_value_gbp,
	confidence,
	acknowledged,
	resolved
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
ON CONFLICT (finding_id) DO NOTHING`, r.table)

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

	for _, finding := range findings {
		if finding.FindingID == "" || finding.SiteID == "" || finding.TS.IsZero() {
			_ = tx.Rollback()
			return errors.New("insights repo: invalid finding row")
		}
		if !finding.Category.Valid() || !finding.Severity.Valid() {
			_ = tx.Rollback()
			return errors.New("insights repo: invalid category or severity")
		}
		if _, err := stmt.ExecContext(
			ctx,
			finding.FindingID,
			finding.TS,
			finding.SiteID,
			string(finding.Category),
			string(finding.Severity),
			finding.Title,
			finding.Description,
			finding.Recommendation,
			finding.EstimatedValueGBP,
			finding.Confidence,
			finding.Acknowledged,
			finding.Resolved,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ActiveFindings lists unresolved findings ordered by severity then value
// at risk.
func (r *Repository) ActiveFindings(ctx context.Context) ([]insights.Finding, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("insights repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT finding_id, ts, site_id, category, severity, title, description,
	recommendation, estimated_value_gbp, confidence, acknowledged, resolved
FROM %s
WHERE resolved = false
ORDER BY
	CASE severity WHEN 'critical' THEN 1 WHEN 'alert' THEN 2 WHEN 'warning' THEN 3 ELSE 4 END,
	estimated_value_gbp DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []insights.Finding
	for rows.Next() {
		var finding insights.Finding
		var category, severity string
		if err := rows.Scan(
			&finding.FindingID,
			&finding.TS,
			&finding.SiteID,
			&category,
			&severity,
			&finding.Title,
			&finding.Description,
			&finding.Recommendation,
			&finding.EstimatedValueGBP,
			&finding.Confidence,
			&finding.Acknowledged,
			&finding.Resolved,
		); err != nil {
			return nil, err
		}
		finding.Category = insights.Category(category)
		finding.Severity = insights.Severity(severity)
		result = append(result, finding)
	}
	return result, rows.Err()
}

// Acknowledge marks a finding as seen by an operator.
func (r *Repository) Acknowledge(ctx context.Context, findingID string) error {
	return r.setFlag(ctx, findingID, "acknowledged")
}

// Resolve closes a finding; resolved findings leave the active views.
func (r *Repository) Resolve(ctx context.Context, findingID string) error {
	return r.setFlag(ctx, findingID, "resolved")
}

func (r *Repository) setFlag(ctx context.Context, findingID, column string) error {
	if r == nil || r.db == nil {
		return errors.New("insights repo: nil db")
	}
	if findingID == "" {
		return errors.New("insights repo: empty finding id")
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = true WHERE finding_id = $1`, r.table, column)
	result, err := r.db.ExecContext(ctx, query, findingID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("insights repo: finding not found")
	}
	return nil
}
