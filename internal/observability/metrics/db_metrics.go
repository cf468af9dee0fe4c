package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "balancing_actions_pending",
			Help: "Balancing actions awaiting execution",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM fact_balancing_actions WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "insights_findings_active",
			Help: "Unresolved insight findings",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM fact_insights_findings WHERE resolved = false")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
