package insights

import (
	"errors"
	"fmt"
	"time"
)

// Severity ranks a finding for triage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityAlert    Severity = "alert"
	SeverityCritical Severity = "critical"
)

// Valid returns true when the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityAlert, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities for notification thresholds; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityAlert:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Category groups findings by rule family.
type Category string

const (
	CategorySignalQuality      Category = "signal_quality"
	CategoryEnergyAvailability Category = "energy_availability"
	CategoryPowerConstraints   Category = "power_constraints"
	CategoryCellImbalance      Category = "cell_imbalance"
	CategoryThermal            Category = "thermal"
	CategoryOperational        Category = "operational"
)

// Valid returns true when the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategorySignalQuality, CategoryEnergyAvailability, CategoryPowerConstraints,
		CategoryCellImbalance, CategoryThermal, CategoryOperational:
		return true
	default:
		return false
	}
}

// Finding is one prioritized operational insight. The ID is assigned by
// the host, keeping the engine deterministic.
type Finding struct {
	FindingID         string    `json:"finding_id"`
	TS                time.Time `json:"ts"`
	SiteID            string    `json:"site_id"`
	Category          Category  `json:"category"`
	Severity          Severity  `json:"severity"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Recommendation    string    `json:"recommendation"`
	EstimatedValueGBP float64   `json:"estimated_value_gbp"`
	Confidence        float64   `json:"confidence"`
	Acknowledged      bool      `json:"acknowledged"`
	Resolved          bool      `json:"resolved"`
}

// Snapshot carries the engine outputs the rules evaluate for one site.
type Snapshot struct {
	SiteID         string
	TS             time.Time
	TrustScore     float64
	SoCDrift       float64
	TimeToEmptyMin *float64
	SoPChargeKW    float64
	SoPDischargeKW float64
	MaxPowerKW     float64
	ImbalanceScore float64
	MaxTempC       float64
	AvgTempC       float64
}

// Engine runs five independent rule categories over a site snapshot and
// emits at most one finding per category, each with an estimated financial
// value at risk.
type Engine struct {
	capacityMWh   float64
	revenuePerMWh float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithRevenuePerMWh overrides the revenue assumption used for value-at-risk
// estimates (GBP per MWh).
func WithRevenuePerMWh(revenue float64) Option {
	return func(e *Engine) {
		e.revenuePerMWh = revenue
	}
}

// NewEngine constructs an insights engine for one site.
func NewEngine(capacityMWh float64, opts ...Option) (*Engine, error) {
	engine := &Engine{
		capacityMWh:   capacityMWh,
		revenuePerMWh: 100,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.capacityMWh <= 0 {
		return nil, errors.New("insights engine: non-positive capacity")
	}
	if engine.revenuePerMWh <= 0 {
		return nil, errors.New("insights engine: non-positive revenue per MWh")
	}
	return engine, nil
}

// Analyze evaluates all rule categories and returns the triggered findings.
func (e *Engine) Analyze(snap Snapshot) []Finding {
	var findings []Finding

	if snap.TrustScore < 70 {
		findings = append(findings, e.signalQuality(snap))
	}
	if snap.TimeToEmptyMin != nil && *snap.TimeToEmptyMin < 60 {
		findings = append(findings, e.energyAvailability(snap))
	}
	if snap.MaxPowerKW > 0 {
		derate := 1 - minFloat(snap.SoPChargeKW, snap.SoPDischargeKW)/snap.MaxPowerKW
		if derate > 0.1 {
			findings = append(findings, e.powerConstraint(snap, derate))
		}
	}
	if snap.ImbalanceScore > 30 {
		findings = append(findings, e.imbalance(snap))
	}
	if snap.MaxTempC > 40 || snap.MaxTempC-snap.AvgTempC > 5 {
		findings = append(findings, e.thermal(snap))
	}

	return findings
}

func (e *Engine) signalQuality(snap Snapshot) Finding {
	var severity Severity
	var impact float64
	switch {
	case snap.TrustScore < 50:
		severity = SeverityCritical
		impact = e.capacityMWh * e.revenuePerMWh * 0.05
	case snap.TrustScore < 60:
		severity = SeverityAlert
		impact = e.capacityMWh * e.revenuePerMWh * 0.03
	default:
		severity = SeverityWarning
		impact = e.capacityMWh * e.revenuePerMWh * 0.01
	}

	return Finding{
		TS:       snap.TS,
		SiteID:   snap.SiteID,
		Category: CategorySignalQuality,
		Severity: severity,
		Title:    fmt.Sprintf("Signal Trust Score Degraded to %.0f%%", snap.TrustScore),
		Description: fmt.Sprintf(
			"The signal trust score has dropped to %.0f%%, indicating potential measurement issues. "+
				"SoC drift of %.1f%% detected between BMS and calculated values.",
			snap.TrustScore, snap.SoCDrift),
		Recommendation: "Review BMS calibration and cell-level data quality. Consider recalibrating " +
			"SoC estimation if drift persists. Check for communication issues with BMS.",
		EstimatedValueGBP: impact,
		Confidence:        0.85,
	}
}

func (e *Engine) energyAvailability(snap Snapshot) Finding {
	tte := *snap.TimeToEmptyMin
	severity := SeverityAlert
	impact := e.capacityMWh * e.revenuePerMWh * 0.05
	if tte < 30 {
		severity = SeverityCritical
		impact = e.capacityMWh * e.revenuePerMWh * 0.1
	}

	return Finding{
		TS:       snap.TS,
		SiteID:   snap.SiteID,
		Category: CategoryEnergyAvailability,
		Severity: severity,
		Title:    fmt.Sprintf("Low Energy Reserve: %.0f Minutes to Empty", tte),
		Description: fmt.Sprintf(
			"At current discharge rate, battery will reach minimum SoC in %.0f minutes. "+
				"This may impact ability to deliver contracted services.", tte),
		Recommendation: "Consider reducing discharge rate or scheduling charge cycle. Review " +
			"dispatch schedule and upcoming commitments. Alert trading desk if service delivery is at risk.",
		EstimatedValueGBP: impact,
		Confidence:        0.9,
	}
}

func (e *Engine) powerConstraint(snap Snapshot, derate float64) Finding {
	deratePct := derate * 100
	var severity Severity
	var impact float64
	switch {
	case deratePct > 30:
		severity = SeverityCritical
		impact = e.capacityMWh * e.revenuePerMWh * derate * 0.5
	case deratePct > 20:
		severity = SeverityAlert
		impact = e.capacityMWh * e.revenuePerMWh * derate * 0.3
	default:
		severity = SeverityWarning
		impact = e.capacityMWh * e.revenuePerMWh * derate * 0.1
	}

	constrained := minFloat(snap.SoPChargeKW, snap.SoPDischargeKW)
	return Finding{
		TS:       snap.TS,
		SiteID:   snap.SiteID,
		Category: CategoryPowerConstraints,
		Severity: severity,
		Title:    fmt.Sprintf("Power Capacity Derated by %.0f%%", deratePct),
		Description: fmt.Sprintf(
			"Maximum power output is constrained to %.1fMW (nominal: %.1fMW). "+
				"This %.0f%% derating may be due to SoC limits, temperature, or cell constraints.",
			constrained/1000, snap.MaxPowerKW/1000, deratePct),
		Recommendation: "Review constraint sources (SoC, temperature, cell health). If thermal, " +
			"check HVAC operation. If SoC-related, adjust operating strategy. Consider maintenance if persistent.",
		EstimatedValueGBP: impact,
		Confidence:        0.8,
	}
}

func (e *Engine) imbalance(snap Snapshot) Finding {
	var severity Severity
	var impact float64
	switch {
	case snap.ImbalanceScore > 60:
		severity = SeverityCritical
		impact = e.capacityMWh * e.revenuePerMWh * 0.08
	case snap.ImbalanceScore > 45:
		severity = SeverityAlert
		impact = e.capacityMWh * e.revenuePerMWh * 0.04
	default:
		severity = SeverityWarning
		impact = e.capacityMWh * e.revenuePerMWh * 0.02
	}

	return Finding{
		TS:       snap.TS,
		SiteID:   snap.SiteID,
		Category: CategoryCellImbalance,
		Severity: severity,
		Title:    fmt.Sprintf("Cell Imbalance Score: %.0f/100", snap.ImbalanceScore),
		Description: fmt.Sprintf(
			"Rack-level imbalance score of %.0f indicates significant variation between cells. "+
				"This reduces usable capacity and accelerates degradation.", snap.ImbalanceScore),
		Recommendation: "Schedule passive balancing cycle during low-demand period. Review cell-level " +
			"data for outliers. Consider proactive maintenance if specific cells show consistent weakness.",
		EstimatedValueGBP: impact,
		Confidence:        0.75,
	}
}

func (e *Engine) thermal(snap Snapshot) Finding {
	tempDelta := snap.MaxTempC - snap.AvgTempC
	var severity Severity
	var impact float64
	switch {
	case snap.MaxTempC > 45 || tempDelta > 8:
		severity = SeverityCritical
		impact = e.capacityMWh * e.revenuePerMWh * 0.1
	case snap.MaxTempC > 40 || tempDelta > 5:
		severity = SeverityAlert
		impact = e.capacityMWh * e.revenuePerMWh * 0.05
	default:
		severity = SeverityWarning
		impact = e.capacityMWh * e.revenuePerMWh * 0.02
	}

	return Finding{
		TS:       snap.TS,
		SiteID:   snap.SiteID,
		Category: CategoryThermal,
		Severity: severity,
		Title:    fmt.Sprintf("Thermal Alert: Max %.1f°C (Δ%.1f°C)", snap.MaxTempC, tempDelta),
		Description: fmt.Sprintf(
			"Maximum cell temperature of %.1f°C detected with %.1f°C variation from average. "+
				"Elevated temperatures accelerate degradation and may trigger protective derating.",
			snap.MaxTempC, tempDelta),
		Recommendation: "Check HVAC system operation and setpoints. Review airflow distribution for " +
			"hot spots. Consider reducing power during peak ambient temperature periods. " +
			"Inspect thermal interface materials if issue persists.",
		EstimatedValueGBP: impact,
		Confidence:        0.9,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
