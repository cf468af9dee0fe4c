package signal

import (
	"errors"
	"math"
	"time"
)

// CorrectedSignals is the per-sample output of the correction engine.
type CorrectedSignals struct {
	SiteID            string    `json:"site_id"`
	TS                time.Time `json:"ts"`
	SoCPctRaw         float64   `json:"soc_pct_raw"`
	SoCPctCorrected   float64   `json:"soc_pct_corrected"`
	SoEMWhCorrected   float64   `json:"soe_mwh_corrected"`
	SoPChargeKW       float64   `json:"sop_charge_kw"`
	SoPDischargeKW    float64   `json:"sop_discharge_kw"`
	HSLSoCPct         float64   `json:"hsl_soc_pct"`
	LSLSoCPct         float64   `json:"lsl_soc_pct"`
	TrustScore        float64   `json:"signal_trust_score"`
	DriftDetected     bool      `json:"drift_detected"`
	CorrectionApplied bool      `json:"correction_applied"`
}

// Drift returns the absolute SoC correction that was applied.
func (c CorrectedSignals) Drift() float64 {
	return math.Abs(c.SoCPctCorrected - c.SoCPctRaw)
}

// Engine corrects raw SoC using cell-level data and derives SoE, SoP and
// dynamic HSL/LSL safety bands. It holds only immutable configuration and
// is safe for concurrent use.
type Engine struct {
	capacityMWh    float64
	maxPowerKW     float64
	hslDefault     float64
	lslDefault     float64
	driftThreshold float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithSafetyDefaults overrides the default HSL/LSL band.
func WithSafetyDefaults(hsl, lsl float64) Option {
	return func(e *Engine) {
		e.hslDefault = hsl
		e.lslDefault = lsl
	}
}

// WithDriftThreshold overrides the drift detection threshold in SoC %.
func WithDriftThreshold(threshold float64) Option {
	return func(e *Engine) {
		e.driftThreshold = threshold
	}
}

// NewEngine constructs a correction engine for one site.
func NewEngine(capacityMWh, maxPowerKW float64, opts ...Option) (*Engine, error) {
	engine := &Engine{
		capacityMWh:    capacityMWh,
		maxPowerKW:     maxPowerKW,
		hslDefault:     95,
		lslDefault:     10,
		driftThreshold: 2,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.capacityMWh <= 0 {
		return nil, errors.New("signal engine: non-positive capacity")
	}
	if engine.maxPowerKW <= 0 {
		return nil, errors.New("signal engine: non-positive max power")
	}
	if engine.hslDefault <= engine.lslDefault {
		return nil, errors.New("signal engine: hsl default must exceed lsl default")
	}
	if engine.driftThreshold <= 0 {
		return nil, errors.New("signal engine: non-positive drift threshold")
	}
	return engine, nil
}

// Process fuses one raw sample into corrected signals. Missing cell arrays
// never fail; they fall back to raw SoC passthrough with reduced trust.
func (e *Engine) Process(siteID string, ts time.Time, socPctRaw float64, cellVoltagesMV, cellTempsC []float64, ambientTempC float64) CorrectedSignals {
	trust := e.trustScore(socPctRaw, cellVoltagesMV, cellTempsC)

	corrected := socPctRaw
	driftDetected := false
	correctionApplied := false
	if len(cellVoltagesMV) > 0 {
		estimate := socFromVoltage(cellVoltagesMV)
		drift := math.Abs(estimate - socPctRaw)
		if drift > e.driftThreshold {
			driftDetected = true
			blend := math.Min(drift/10, 0.5)
			corrected = socPctRaw*(1-blend) + estimate*blend
			correctionApplied = true
		}
	}

	hsl, lsl := e.safetyLimits(cellTempsC)
	soe := e.stateOfEnergy(corrected, hsl, lsl)
	charge, discharge := e.stateOfPower(corrected, cellTempsC)

	return CorrectedSignals{
		SiteID:            siteID,
		TS:                ts,
		SoCPctRaw:         socPctRaw,
		SoCPctCorrected:   corrected,
		SoEMWhCorrected:   soe,
		SoPChargeKW:       charge,
		SoPDischargeKW:    discharge,
		HSLSoCPct:         hsl,
		LSLSoCPct:         lsl,
		TrustScore:        trust,
		DriftDetected:     driftDetected,
		CorrectionApplied: correctionApplied,
	}
}

func (e *Engine) trustScore(socRaw float64, voltages, temps []float64) float64 {
	score := 100.0
	if len(voltages) == 0 {
		score -= 20
	}
	if len(temps) == 0 {
		score -= 10
	}
	if socRaw < 5 || socRaw > 98 {
		score -= 10
	}
	if len(voltages) > 1 {
		if std := stddev(voltages); std > 50 {
			score -= math.Min(std/10, 20)
		}
	}
	if len(temps) > 1 {
		if std := stddev(temps); std > 3 {
			score -= math.Min(std*3, 15)
		}
	}
	return clamp(score, 0, 100)
}

// socFromVoltage estimates SoC from the mean cell voltage using a
// simplified piecewise-linear LFP OCV curve. The breakpoints are
// hand-authored heuristics, not a calibrated OCV table.
func socFromVoltage(voltagesMV []float64) float64 {
	avg := mean(voltagesMV)
	switch {
	case avg >= 3400:
		return 100
	case avg <= 2800:
		return 0
	default:
		return (avg - 2800) / (3400 - 2800) * 100
	}
}

func (e *Engine) safetyLimits(temps []float64) (hsl, lsl float64) {
	hsl = e.hslDefault
	lsl = e.lslDefault
	if len(temps) == 0 {
		return hsl, lsl
	}
	maxTemp := maxOf(temps)
	minTemp := minOf(temps)
	if maxTemp > 35 {
		hsl = math.Max(80, e.hslDefault-(maxTemp-35)*2)
	}
	if minTemp < 10 {
		lsl = math.Min(20, e.lslDefault+(10-minTemp)*2)
	}
	return hsl, lsl
}

func (e *Engine) stateOfEnergy(socPct, hsl, lsl float64) float64 {
	usableRange := hsl - lsl
	if usableRange <= 0 {
		return 0
	}
	usable := math.Min(socPct, hsl) - lsl
	if usable <= 0 {
		return 0
	}
	return usable / 100 * e.capacityMWh
}

func (e *Engine) stateOfPower(socPct float64, temps []float64) (chargeKW, dischargeKW float64) {
	chargeKW = e.maxPowerKW
	dischargeKW = e.maxPowerKW

	if socPct > 90 {
		chargeKW *= (100 - socPct) / 10
	}
	if socPct < 10 {
		dischargeKW *= socPct / 10
	}

	if len(temps) > 0 {
		maxTemp := maxOf(temps)
		minTemp := minOf(temps)
		if maxTemp > 40 {
			derate := math.Min(0.5, (maxTemp-40)*0.1)
			chargeKW *= 1 - derate
			dischargeKW *= 1 - derate
		}
		if minTemp < 5 {
			derate := math.Min(0.5, (5-minTemp)*0.1)
			chargeKW *= 1 - derate
		}
	}

	if chargeKW < 0 {
		chargeKW = 0
	}
	if dischargeKW < 0 {
		dischargeKW = 0
	}
	return chargeKW, dischargeKW
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	var sum float64
	for _, v := range values {
		diff := v - avg
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)))
}

func maxOf(values []float64) float64 {
	result := values[0]
	for _, v := range values[1:] {
		if v > result {
			result = v
		}
	}
	return result
}

func minOf(values []float64) float64 {
	result := values[0]
	for _, v := range values[1:] {
		if v < result {
			result = v
		}
	}
	return result
}
