package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "edge_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	tickTotal   *prometheus.CounterVec
	tickLatency *prometheus.HistogramVec

	driftDetections prometheus.Counter

	findingsTotal *prometheus.CounterVec
	actionsTotal  *prometheus.CounterVec

	notifyTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	cacheHits   *prometheus.CounterVec
	signalTrust *prometheus.GaugeVec
)

// Init registers pipeline metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		tickTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_ticks_total",
				Help: "Total pipeline ticks by result",
			},
			[]string{"result"},
		)
		tickLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_tick_latency_seconds",
				Help:    "Pipeline tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		driftDetections = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "soc_drift_detections_total",
				Help: "Total SoC drift detections",
			},
		)

		findingsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insights_findings_total",
				Help: "Total generated findings by severity",
			},
			[]string{"severity"},
		)
		actionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "balancing_actions_total",
				Help: "Total generated balancing actions by priority",
			},
			[]string{"priority"},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_deliveries_total",
				Help: "Total webhook notifications by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		cacheHits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_requests_total",
				Help: "Total cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		signalTrust = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "signal_trust_score",
				Help: "Latest signal trust score per site",
			},
			[]string{"site_id"},
		)

		prometheus.MustRegister(
			tickTotal,
			tickLatency,
			driftDetections,
			findingsTotal,
			actionsTotal,
			notifyTotal,
			exportTotal,
			exportLatency,
			cacheHits,
			signalTrust,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveTick records pipeline tick duration and result.
func ObserveTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if tickTotal != nil {
		tickTotal.WithLabelValues(result).Inc()
	}
	if tickLatency != nil {
		tickLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncDriftDetected increments the drift detection counter.
func IncDriftDetected() {
	if driftDetections != nil {
		driftDetections.Inc()
	}
}

// IncFinding increments the finding counter for a severity.
func IncFinding(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if findingsTotal != nil {
		findingsTotal.WithLabelValues(severity).Inc()
	}
}

// IncAction increments the balancing action counter for a priority.
func IncAction(priority string) {
	if priority == "" {
		priority = "unknown"
	}
	if actionsTotal != nil {
		actionsTotal.WithLabelValues(priority).Inc()
	}
}

// IncNotify increments the webhook delivery counter.
func IncNotify(result string) {
	if result == "" {
		result = resultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}

// ObserveExport records report export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncCache increments the cache lookup counter.
func IncCache(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if cacheHits != nil {
		cacheHits.WithLabelValues(outcome).Inc()
	}
}

// SetSignalTrust publishes the latest trust score for a site.
func SetSignalTrust(siteID string, score float64) {
	if siteID == "" {
		return
	}
	if signalTrust != nil {
		signalTrust.WithLabelValues(siteID).Set(score)
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
