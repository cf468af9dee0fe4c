package forecast

import (
	"errors"
	"math"
	"time"
)

// DefaultHorizons are the forecast horizons in minutes used when the caller
// does not supply its own set.
var DefaultHorizons = []int{15, 30, 60, 120, 240}

// EnergyForecast is one prediction at a single horizon.
type EnergyForecast struct {
	SiteID             string    `json:"site_id"`
	TS                 time.Time `json:"ts"`
	HorizonMin         int       `json:"horizon_min"`
	PredictedSoCPct    float64   `json:"predicted_soc_pct"`
	TimeToEmptyMin     *float64  `json:"time_to_empty_min,omitempty"`
	TimeToFullMin      *float64  `json:"time_to_full_min,omitempty"`
	ConfidencePct      float64   `json:"confidence_pct"`
	AvailableEnergyMWh float64   `json:"available_energy_mwh"`
	AvailablePowerKW   float64   `json:"available_power_kw"`
}

// Engine extrapolates SoC, time-to-empty/full and availability over a set
// of horizons. Positive power means discharge.
type Engine struct {
	capacityMWh float64
	maxPowerKW  float64
	minSoCPct   float64
	maxSoCPct   float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithOperatingBand overrides the min/max operational SoC band.
func WithOperatingBand(minSoC, maxSoC float64) Option {
	return func(e *Engine) {
		e.minSoCPct = minSoC
		e.maxSoCPct = maxSoC
	}
}

// NewEngine constructs a forecast engine for one site.
func NewEngine(capacityMWh, maxPowerKW float64, opts ...Option) (*Engine, error) {
	engine := &Engine{
		capacityMWh: capacityMWh,
		maxPowerKW:  maxPowerKW,
		minSoCPct:   10,
		maxSoCPct:   95,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.capacityMWh <= 0 {
		return nil, errors.New("forecast engine: non-positive capacity")
	}
	if engine.maxPowerKW <= 0 {
		return nil, errors.New("forecast engine: non-positive max power")
	}
	if engine.minSoCPct < 0 || engine.maxSoCPct > 100 || engine.minSoCPct >= engine.maxSoCPct {
		return nil, errors.New("forecast engine: invalid operating band")
	}
	return engine, nil
}

// Forecast produces one EnergyForecast per horizon. When powerForecastKW is
// provided it supplies per-horizon power; missing entries fall back to the
// current power.
func (e *Engine) Forecast(siteID string, ts time.Time, currentSoCPct, currentPowerKW float64, horizonMinutes []int, powerForecastKW []float64) []EnergyForecast {
	if len(horizonMinutes) == 0 {
		horizonMinutes = DefaultHorizons
	}
	forecasts := make([]EnergyForecast, 0, len(horizonMinutes))
	for i, horizon := range horizonMinutes {
		powerKW := currentPowerKW
		if i < len(powerForecastKW) {
			powerKW = powerForecastKW[i]
		}
		forecasts = append(forecasts, e.singleHorizon(siteID, ts, currentSoCPct, powerKW, horizon))
	}
	return forecasts
}

func (e *Engine) singleHorizon(siteID string, ts time.Time, currentSoCPct, powerKW float64, horizonMin int) EnergyForecast {
	hours := float64(horizonMin) / 60
	energyChangeMWh := powerKW / 1000 * hours
	socChangePct := energyChangeMWh / e.capacityMWh * 100
	predictedSoC := clamp(currentSoCPct-socChangePct, 0, 100)

	var timeToEmpty, timeToFull *float64
	switch {
	case powerKW > 0:
		usableSoC := currentSoCPct - e.minSoCPct
		if usableSoC > 0 {
			usableEnergyMWh := usableSoC / 100 * e.capacityMWh
			minutes := usableEnergyMWh / (powerKW / 1000) * 60
			timeToEmpty = &minutes
		}
	case powerKW < 0:
		remainingSoC := e.maxSoCPct - currentSoCPct
		if remainingSoC > 0 {
			remainingEnergyMWh := remainingSoC / 100 * e.capacityMWh
			minutes := remainingEnergyMWh / (math.Abs(powerKW) / 1000) * 60
			timeToFull = &minutes
		}
	}

	availableSoC := math.Max(0, predictedSoC-e.minSoCPct)

	return EnergyForecast{
		SiteID:             siteID,
		TS:                 ts,
		HorizonMin:         horizonMin,
		PredictedSoCPct:    predictedSoC,
		TimeToEmptyMin:     timeToEmpty,
		TimeToFullMin:      timeToFull,
		ConfidencePct:      e.confidence(horizonMin, powerKW),
		AvailableEnergyMWh: availableSoC / 100 * e.capacityMWh,
		AvailablePowerKW:   e.availablePower(predictedSoC),
	}
}

// availablePower ramps linearly across a 10-point SoC band above the
// operating minimum and returns the full rating beyond it.
func (e *Engine) availablePower(socPct float64) float64 {
	switch {
	case socPct <= e.minSoCPct:
		return 0
	case socPct >= e.maxSoCPct:
		return e.maxPowerKW
	case socPct < e.minSoCPct+10:
		return e.maxPowerKW * (socPct - e.minSoCPct) / 10
	default:
		return e.maxPowerKW
	}
}

// confidence decays with horizon and with relative power draw, floored at
// 50.
func (e *Engine) confidence(horizonMin int, powerKW float64) float64 {
	base := 100 - float64(horizonMin)/10
	powerFactor := 1 - math.Min(math.Abs(powerKW)/e.maxPowerKW*0.1, 0.2)
	return clamp(base*powerFactor, 50, 100)
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
