package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "bess-edge/internal/telemetry/domain"
)

const (
	tagSoC     = "soc_pct"
	tagPower   = "p_kw"
	tagAmbient = "temp_c_avg"
)

// Reader loads telemetry inputs for the pipeline from the analytical store.
type Reader struct {
	db *sql.DB
}

// NewReader constructs a Reader.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// LatestSample returns the most recent scalar sample for a site, assembled
// from the tall telemetry table. Missing power or ambient tags degrade to
// zero values rather than failing.
func (r *Reader) LatestSample(ctx context.Context, siteID string) (*telemetry.Sample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("telemetry reader: nil db")
	}
	if siteID == "" {
		return nil, errors.New("telemetry reader: empty site id")
	}

	soc, ts, ok, err := r.latestTag(ctx, siteID, tagSoC)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	sample := &telemetry.Sample{SiteID: siteID, TS: ts, SoCPct: soc, AmbientTempC: 25}
	if power, _, ok, err := r.latestTag(ctx, siteID, tagPower); err != nil {
		return nil, err
	} else if ok {
		sample.PowerKW = power
	}
	if ambient, _, ok, err := r.latestTag(ctx, siteID, tagAmbient); err != nil {
		return nil, err
	} else if ok {
		sample.AmbientTempC = ambient
	}
	return sample, nil
}

func (r *Reader) latestTag(ctx context.Context, siteID, tag string) (float64, time.Time, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT ts, value
FROM fact_telemetry
WHERE site_id = $1 AND tag = $2
ORDER BY ts DESC
LIMIT 1`, siteID, tag)

	var ts time.Time
	var value sql.NullFloat64
	if err := row.Scan(&ts, &value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, err
	}
	if !value.Valid {
		return 0, time.Time{}, false, nil
	}
	return value.Float64, ts.UTC(), true, nil
}

// LatestRackCells returns the newest cell arrays per rack for a site.
func (r *Reader) LatestRackCells(ctx context.Context, siteID string) ([]telemetry.RackCells, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("telemetry reader: nil db")
	}
	if siteID == "" {
		return nil, errors.New("telemetry reader: empty site id")
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT c.rack_id, c.cell_id, c.ts, c.voltage_mv, c.temp_c
FROM fact_cell_telemetry c
JOIN (
	SELECT rack_id, MAX(ts) AS latest_ts
	FROM fact_cell_telemetry
	WHERE site_id = $1
	GROUP BY rack_id
) latest ON c.rack_id = latest.rack_id AND c.ts = latest.latest_ts
WHERE c.site_id = $1
ORDER BY c.rack_id ASC, c.cell_id ASC`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRack := map[string]*telemetry.RackCells{}
	var order []string
	for rows.Next() {
		var rackID, cellID string
		var ts time.Time
		var voltage, temp sql.NullFloat64
		if err := rows.Scan(&rackID, &cellID, &ts, &voltage, &temp); err != nil {
			return nil, err
		}
		rack, exists := byRack[rackID]
		if !exists {
			rack = &telemetry.RackCells{SiteID: siteID, RackID: rackID, TS: ts.UTC()}
			byRack[rackID] = rack
			order = append(order, rackID)
		}
		if voltage.Valid && temp.Valid {
			rack.CellIDs = append(rack.CellIDs, cellID)
			rack.VoltagesMV = append(rack.VoltagesMV, voltage.Float64)
			rack.TempsC = append(rack.TempsC, temp.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]telemetry.RackCells, 0, len(order))
	for _, rackID := range order {
		if len(byRack[rackID].VoltagesMV) > 0 {
			result = append(result, *byRack[rackID])
		}
	}
	return result, nil
}
