// Command telemetry_seed fills fact_telemetry and fact_cell_telemetry with
// synthetic site and cell readings for local development and load testing.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn          string
	sitePrefix   string
	siteCount    int
	rackCount    int
	cellsPerRack int
	minutes      int
	stepMinutes  int
	seed         int64
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required (-dsn)")
	}
	if cfg.siteCount <= 0 || cfg.rackCount <= 0 || cfg.cellsPerRack <= 0 {
		log.Fatal("site-count, rack-count and cells-per-rack must be > 0")
	}
	if cfg.minutes <= 0 || cfg.stepMinutes <= 0 {
		log.Fatal("minutes and step-minutes must be > 0")
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(cfg.seed))
	end := time.Now().UTC().Truncate(time.Minute)
	start := end.Add(-time.Duration(cfg.minutes) * time.Minute)

	log.Printf("seeding telemetry: sites=%d racks=%d cells=%d window=%s..%s step=%dm",
		cfg.siteCount, cfg.rackCount, cfg.cellsPerRack,
		start.Format(time.RFC3339), end.Format(time.RFC3339), cfg.stepMinutes)

	for i := 0; i < cfg.siteCount; i++ {
		siteID := fmt.Sprintf("%s%03d", cfg.sitePrefix, i+1)
		if err := seedSite(ctx, db, rng, cfg, siteID, start, end); err != nil {
			log.Fatalf("seed site %s: %v", siteID, err)
		}
		log.Printf("seeded %s", siteID)
	}
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.dsn, "dsn", envOr("PG_DSN", envOr("DATABASE_URL", "")), "postgres dsn")
	flag.StringVar(&cfg.sitePrefix, "site-prefix", "site-", "site id prefix")
	flag.IntVar(&cfg.siteCount, "site-count", 2, "number of sites")
	flag.IntVar(&cfg.rackCount, "rack-count", 4, "racks per site")
	flag.IntVar(&cfg.cellsPerRack, "cells-per-rack", 16, "cells per rack")
	flag.IntVar(&cfg.minutes, "minutes", 180, "minutes of history to generate")
	flag.IntVar(&cfg.stepMinutes, "step-minutes", 1, "minutes between samples")
	flag.Int64Var(&cfg.seed, "seed", 42, "rng seed")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func seedSite(ctx context.Context, db *sql.DB, rng *rand.Rand, cfg config, siteID string, start, end time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	siteStmt, err := tx.PrepareContext(ctx, `
INSERT INTO fact_telemetry (site_id, ts, tag, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (site_id, ts, tag) DO UPDATE SET value = EXCLUDED.value`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer siteStmt.Close()

	cellStmt, err := tx.PrepareContext(ctx, `
INSERT INTO fact_cell_telemetry (site_id, rack_id, cell_id, ts, voltage_mv, temp_c)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (site_id, rack_id, cell_id, ts)
DO UPDATE SET voltage_mv = EXCLUDED.voltage_mv, temp_c = EXCLUDED.temp_c`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer cellStmt.Close()

	// Slow SoC sine over the window with per-site phase so sites differ.
	phase := rng.Float64() * 2 * math.Pi
	for ts := start; !ts.After(end); ts = ts.Add(time.Duration(cfg.stepMinutes) * time.Minute) {
		progress := ts.Sub(start).Minutes() / end.Sub(start).Minutes()
		soc := 50 + 30*math.Sin(progress*2*math.Pi+phase)
		power := 5000 * math.Cos(progress*2*math.Pi+phase)
		ambient := 22 + 4*rng.Float64()

		rows := []struct {
			tag   string
			value float64
		}{
			{"soc_pct", soc},
			{"p_kw", power},
			{"temp_c_avg", ambient},
		}
		for _, row := range rows {
			if _, err := siteStmt.ExecContext(ctx, siteID, ts, row.tag, row.value); err != nil {
				_ = tx.Rollback()
				return err
			}
		}

		// Cell rows only at the window end keeps the dataset small while
		// still feeding the balancing engine a full latest snapshot.
		if !ts.Equal(end) {
			continue
		}
		baseVoltage := 2800 + soc/100*600
		for rack := 0; rack < cfg.rackCount; rack++ {
			rackID := fmt.Sprintf("rack-%02d", rack+1)
			for cell := 0; cell < cfg.cellsPerRack; cell++ {
				cellID := fmt.Sprintf("cell_%d", cell)
				voltage := baseVoltage + rng.NormFloat64()*15
				temp := 25 + rng.NormFloat64()*1.5
				if _, err := cellStmt.ExecContext(ctx, siteID, rackID, cellID, ts, voltage, temp); err != nil {
					_ = tx.Rollback()
					return err
				}
			}
		}
	}

	return tx.Commit()
}
