package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	balancing "bess-edge/internal/balancing/domain"
	forecast "bess-edge/internal/forecast/domain"
	insights "bess-edge/internal/insights/domain"
	"bess-edge/internal/insights/notify"
	"bess-edge/internal/observability/metrics"
	signal "bess-edge/internal/signal/domain"
	telemetry "bess-edge/internal/telemetry/domain"
)

// SignalStore persists corrected signals.
type SignalStore interface {
	Insert(ctx context.Context, signals signal.CorrectedSignals) error
}

// ForecastStore persists multi-horizon forecasts.
type ForecastStore interface {
	InsertBatch(ctx context.Context, forecasts []forecast.EnergyForecast) error
}

// BalancingStore persists rack imbalance and balancing actions.
type BalancingStore interface {
	InsertImbalance(ctx context.Context, imbalance balancing.RackImbalance) error
	InsertActions(ctx context.Context, actions []balancing.Action) error
}

// InsightsStore persists generated findings.
type InsightsStore interface {
	InsertBatch(ctx context.Context, findings []insights.Finding) error
}

// Runner drives one decision cycle per site: signal correction, forecasting,
// balancing analysis and insights generation, in that order.
type Runner struct {
	samples   telemetry.SampleReader
	cells     telemetry.CellReader
	signals   SignalStore
	forecasts ForecastStore
	balancing BalancingStore
	insights  InsightsStore
	notifier  notify.Notifier
	logger    *log.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewRunner constructs a Runner.
func NewRunner(
	samples telemetry.SampleReader,
	cells telemetry.CellReader,
	signals SignalStore,
	forecasts ForecastStore,
	balancingStore BalancingStore,
	insightsStore InsightsStore,
	notifier notify.Notifier,
	cfg Config,
	logger *log.Logger,
) (*Runner, error) {
	if samples == nil || cells == nil {
		return nil, errors.New("pipeline runner: nil telemetry reader")
	}
	if signals == nil || forecasts == nil || balancingStore == nil || insightsStore == nil {
		return nil, errors.New("pipeline runner: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		samples:   samples,
		cells:     cells,
		signals:   signals,
		forecasts: forecasts,
		balancing: balancingStore,
		insights:  insightsStore,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// SetConfig swaps the active configuration. Invalid configs are rejected and
// the previous config stays active.
func (r *Runner) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	return nil
}

func (r *Runner) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// RunTick executes one decision cycle for every configured site. Per-site
// failures are logged and do not abort the tick.
func (r *Runner) RunTick(ctx context.Context) {
	if r == nil {
		return
	}
	cfg := r.config()
	for _, siteID := range cfg.SiteIDs {
		if siteID == "" {
			continue
		}
		started := time.Now()
		err := r.runSite(ctx, cfg, siteID)
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
			r.logf("pipeline_site_failed", siteID, err)
		}
		metrics.ObserveTick(result, time.Since(started))
	}
}

func (r *Runner) runSite(ctx context.Context, cfg Config, siteID string) error {
	sample, err := r.samples.LatestSample(ctx, siteID)
	if err != nil {
		return err
	}
	if sample == nil {
		r.logf("pipeline_no_telemetry", siteID, nil)
		return nil
	}

	racks, err := r.cells.LatestRackCells(ctx, siteID)
	if err != nil {
		return err
	}

	params := cfg.ParamsForSite(siteID)

	corrected, err := r.correctSignals(ctx, params, siteID, sample, racks)
	if err != nil {
		return err
	}

	forecasts, err := r.runForecast(ctx, params, cfg.Horizons, siteID, corrected, sample)
	if err != nil {
		return err
	}

	maxImbalance, maxTemp, avgTemp, err := r.analyzeBalancing(ctx, cfg, params, racks)
	if err != nil {
		return err
	}

	return r.generateInsights(ctx, params, siteID, corrected, forecasts, maxImbalance, maxTemp, avgTemp)
}

func (r *Runner) correctSignals(ctx context.Context, params SiteParams, siteID string, sample *telemetry.Sample, racks []telemetry.RackCells) (signal.CorrectedSignals, error) {
	engine, err := signal.NewEngine(
		params.CapacityMWh,
		params.MaxPowerKW,
		signal.WithSafetyDefaults(params.HSLDefaultPct, params.LSLDefaultPct),
		signal.WithDriftThreshold(params.DriftThreshold),
	)
	if err != nil {
		return signal.CorrectedSignals{}, err
	}

	var voltages, temps []float64
	for _, rack := range racks {
		voltages = append(voltages, rack.VoltagesMV...)
		temps = append(temps, rack.TempsC...)
	}

	corrected := engine.Process(siteID, sample.TS, sample.SoCPct, voltages, temps, sample.AmbientTempC)
	if err := r.signals.Insert(ctx, corrected); err != nil {
		return signal.CorrectedSignals{}, err
	}

	metrics.SetSignalTrust(siteID, corrected.TrustScore)
	if corrected.DriftDetected {
		metrics.IncDriftDetected()
		r.logf("pipeline_drift_detected", siteID, nil)
	}
	return corrected, nil
}

func (r *Runner) runForecast(ctx context.Context, params SiteParams, horizons []int, siteID string, corrected signal.CorrectedSignals, sample *telemetry.Sample) ([]forecast.EnergyForecast, error) {
	engine, err := forecast.NewEngine(
		params.CapacityMWh,
		params.MaxPowerKW,
		forecast.WithOperatingBand(params.MinSoCPct, params.MaxSoCPct),
	)
	if err != nil {
		return nil, err
	}

	forecasts := engine.Forecast(siteID, sample.TS, corrected.SoCPctCorrected, sample.PowerKW, horizons, nil)
	if err := r.forecasts.InsertBatch(ctx, forecasts); err != nil {
		return nil, err
	}
	return forecasts, nil
}

func (r *Runner) analyzeBalancing(ctx context.Context, cfg Config, params SiteParams, racks []telemetry.RackCells) (maxImbalance, maxTemp, avgTemp float64, err error) {
	engine, err := balancing.NewEngine(
		balancing.WithVoltageThresholds(cfg.Balancing.VoltageWarningMV, cfg.Balancing.VoltageCriticalMV),
		balancing.WithTempThresholds(cfg.Balancing.TempWarningC, cfg.Balancing.TempCriticalC),
	)
	if err != nil {
		return 0, 0, 0, err
	}

	var tempSum float64
	var tempCount int
	for _, rack := range racks {
		imbalance, analyzeErr := engine.AnalyzeRack(rack.SiteID, rack.RackID, rack.TS, rack.VoltagesMV, rack.TempsC, rack.CellIDs)
		if analyzeErr != nil {
			return 0, 0, 0, analyzeErr
		}
		if insertErr := r.balancing.InsertImbalance(ctx, imbalance); insertErr != nil {
			return 0, 0, 0, insertErr
		}

		actions := engine.GenerateActions(imbalance, params.CapacityMWh)
		for i := range actions {
			actions[i].ActionID = NewID()
		}
		if insertErr := r.balancing.InsertActions(ctx, actions); insertErr != nil {
			return 0, 0, 0, insertErr
		}
		for _, action := range actions {
			metrics.IncAction(string(action.Priority))
		}

		if imbalance.ImbalanceScore > maxImbalance {
			maxImbalance = imbalance.ImbalanceScore
		}
		for _, temp := range rack.TempsC {
			if temp > maxTemp {
				maxTemp = temp
			}
			tempSum += temp
			tempCount++
		}
	}
	if tempCount > 0 {
		avgTemp = tempSum / float64(tempCount)
	}
	return maxImbalance, maxTemp, avgTemp, nil
}

func (r *Runner) generateInsights(ctx context.Context, params SiteParams, siteID string, corrected signal.CorrectedSignals, forecasts []forecast.EnergyForecast, maxImbalance, maxTemp, avgTemp float64) error {
	engine, err := insights.NewEngine(params.CapacityMWh, insights.WithRevenuePerMWh(params.RevenuePerMWh))
	if err != nil {
		return err
	}

	snap := insights.Snapshot{
		SiteID:         siteID,
		TS:             corrected.TS,
		TrustScore:     corrected.TrustScore,
		SoCDrift:       corrected.Drift(),
		TimeToEmptyMin: timeToEmptyAtHour(forecasts),
		SoPChargeKW:    corrected.SoPChargeKW,
		SoPDischargeKW: corrected.SoPDischargeKW,
		MaxPowerKW:     params.MaxPowerKW,
		ImbalanceScore: maxImbalance,
		MaxTempC:       maxTemp,
		AvgTempC:       avgTemp,
	}

	findings := engine.Analyze(snap)
	for i := range findings {
		findings[i].FindingID = NewID()
	}
	if err := r.insights.InsertBatch(ctx, findings); err != nil {
		return err
	}

	for _, finding := range findings {
		metrics.IncFinding(string(finding.Severity))
		if r.notifier != nil && finding.Severity.Rank() >= insights.SeverityAlert.Rank() {
			msg := notify.AlertMessage{
				SiteID:            finding.SiteID,
				FindingID:         finding.FindingID,
				Category:          string(finding.Category),
				Severity:          string(finding.Severity),
				Title:             finding.Title,
				Description:       finding.Description,
				Recommendation:    finding.Recommendation,
				EstimatedValueGBP: finding.EstimatedValueGBP,
			}
			if notifyErr := r.notifier.Notify(ctx, msg); notifyErr != nil {
				metrics.IncNotify(metrics.ResultError)
				r.logf("pipeline_notify_failed", siteID, notifyErr)
			} else {
				metrics.IncNotify(metrics.ResultSuccess)
			}
		}
	}
	return nil
}

// timeToEmptyAtHour picks the one-hour horizon's time-to-empty estimate,
// falling back to the first horizon that carries one.
func timeToEmptyAtHour(forecasts []forecast.EnergyForecast) *float64 {
	for _, f := range forecasts {
		if f.HorizonMin == 60 && f.TimeToEmptyMin != nil {
			return f.TimeToEmptyMin
		}
	}
	for _, f := range forecasts {
		if f.TimeToEmptyMin != nil {
			return f.TimeToEmptyMin
		}
	}
	return nil
}

func (r *Runner) logf(event, siteID string, err error) {
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Printf("event=%s site_id=%s error=%v", event, siteID, err)
		return
	}
	r.logger.Printf("event=%s site_id=%s", event, siteID)
}
