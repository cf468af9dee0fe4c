package balancing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Severity classifies how far a rack has diverged.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true when the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Priority orders balancing actions for the operations queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid returns true when the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Action types emitted by GenerateActions.
const (
	ActionImmediateBalancing = "immediate_balancing"
	ActionScheduledBalancing = "scheduled_balancing"
	ActionMonitoring         = "monitoring"
	ActionThermalManagement  = "thermal_management"
)

// StatusPending is the initial status of every generated action.
const StatusPending = "pending"

// RackImbalance is the per-rack analysis result.
type RackImbalance struct {
	SiteID         string    `json:"site_id"`
	RackID         string    `json:"rack_id"`
	TS             time.Time `json:"ts"`
	ImbalanceScore float64   `json:"imbalance_score"`
	Severity       Severity  `json:"severity"`
	MaxCellDeltaMV float64   `json:"max_cell_delta_mv"`
	MaxTempDeltaC  float64   `json:"max_temp_delta_c"`
	WeakestCellID  string    `json:"weakest_cell_id"`
	StrongestCellID string   `json:"strongest_cell_id"`
}

// Action is a recommended balancing measure. The ID is assigned by the
// host; the engine leaves it empty to stay deterministic.
type Action struct {
	ActionID             string    `json:"action_id"`
	SiteID               string    `json:"site_id"`
	RackID               string    `json:"rack_id"`
	TS                   time.Time `json:"ts"`
	ActionType           string    `json:"action_type"`
	Priority             Priority  `json:"priority"`
	Description          string    `json:"description"`
	EstimatedDurationMin int       `json:"estimated_duration_min"`
	EstimatedRecoveryMWh float64   `json:"estimated_recovery_mwh"`
	Status               string    `json:"status"`
}

// Engine detects rack-level cell imbalance and synthesizes remediation
// actions. Thresholds are immutable after construction.
type Engine struct {
	voltageThresholdMV float64
	tempThresholdC     float64
	criticalVoltageMV  float64
	criticalTempC      float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithVoltageThresholds overrides the warning/critical voltage deltas (mV).
func WithVoltageThresholds(warning, critical float64) Option {
	return func(e *Engine) {
		e.voltageThresholdMV = warning
		e.criticalVoltageMV = critical
	}
}

// WithTempThresholds overrides the warning/critical temperature deltas (C).
func WithTempThresholds(warning, critical float64) Option {
	return func(e *Engine) {
		e.tempThresholdC = warning
		e.criticalTempC = critical
	}
}

// NewEngine constructs a balancing engine.
func NewEngine(opts ...Option) (*Engine, error) {
	engine := &Engine{
		voltageThresholdMV: 50,
		tempThresholdC:     5,
		criticalVoltageMV:  100,
		criticalTempC:      10,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.voltageThresholdMV <= 0 || engine.criticalVoltageMV <= 0 {
		return nil, errors.New("balancing engine: non-positive voltage threshold")
	}
	if engine.tempThresholdC <= 0 || engine.criticalTempC <= 0 {
		return nil, errors.New("balancing engine: non-positive temperature threshold")
	}
	if engine.criticalVoltageMV < engine.voltageThresholdMV || engine.criticalTempC < engine.tempThresholdC {
		return nil, errors.New("balancing engine: critical threshold below warning threshold")
	}
	return engine, nil
}

// AnalyzeRack scores one rack's cell arrays. cellIDs is optional; missing
// ids are synthesized from the cell index.
func (e *Engine) AnalyzeRack(siteID, rackID string, ts time.Time, cellVoltagesMV, cellTempsC []float64, cellIDs []string) (RackImbalance, error) {
	if len(cellVoltagesMV) == 0 || len(cellTempsC) == 0 {
		return RackImbalance{}, errors.New("balancing engine: empty cell arrays")
	}

	voltageDelta := spread(cellVoltagesMV)
	tempDelta := spread(cellTempsC)

	weakest := argmin(cellVoltagesMV)
	strongest := argmax(cellVoltagesMV)

	voltageScore := math.Min(100, voltageDelta/e.criticalVoltageMV*50)
	tempScore := math.Min(100, tempDelta/e.criticalTempC*50)

	return RackImbalance{
		SiteID:          siteID,
		RackID:          rackID,
		TS:              ts,
		ImbalanceScore:  (voltageScore + tempScore) / 2,
		Severity:        e.severity(voltageDelta, tempDelta),
		MaxCellDeltaMV:  voltageDelta,
		MaxTempDeltaC:   tempDelta,
		WeakestCellID:   cellID(cellIDs, weakest),
		StrongestCellID: cellID(cellIDs, strongest),
	}, nil
}

// GenerateActions turns an imbalance into zero or more prioritized actions
// with an estimated recoverable-energy figure.
func (e *Engine) GenerateActions(imbalance RackImbalance, nominalCapacityMWh float64) []Action {
	var actions []Action
	if imbalance.Severity == SeverityLow {
		return actions
	}

	var (
		priority   Priority
		actionType string
		duration   int
		desc       string
	)
	switch imbalance.Severity {
	case SeverityCritical:
		priority = PriorityUrgent
		actionType = ActionImmediateBalancing
		duration = 120
		desc = fmt.Sprintf(
			"Critical imbalance detected. Voltage delta: %.0fmV, Temp delta: %.1fC. Immediate passive balancing required.",
			imbalance.MaxCellDeltaMV, imbalance.MaxTempDeltaC)
	case SeverityHigh:
		priority = PriorityHigh
		actionType = ActionScheduledBalancing
		duration = 240
		desc = fmt.Sprintf(
			"High imbalance detected. Voltage delta: %.0fmV. Schedule balancing cycle within 24 hours.",
			imbalance.MaxCellDeltaMV)
	default:
		priority = PriorityMedium
		actionType = ActionMonitoring
		duration = 60
		desc = fmt.Sprintf(
			"Moderate imbalance detected. Voltage delta: %.0fmV. Increase monitoring frequency and plan maintenance.",
			imbalance.MaxCellDeltaMV)
	}

	// Recoverable energy scales with the score, capped at 2% of capacity.
	recovery := nominalCapacityMWh * imbalance.ImbalanceScore / 100 * 0.02

	actions = append(actions, Action{
		SiteID:               imbalance.SiteID,
		RackID:               imbalance.RackID,
		TS:                   imbalance.TS,
		ActionType:           actionType,
		Priority:             priority,
		Description:          desc,
		EstimatedDurationMin: duration,
		EstimatedRecoveryMWh: recovery,
		Status:               StatusPending,
	})

	if imbalance.MaxTempDeltaC > e.tempThresholdC {
		thermalPriority := PriorityMedium
		if imbalance.MaxTempDeltaC > e.criticalTempC {
			thermalPriority = PriorityHigh
		}
		actions = append(actions, Action{
			SiteID:               imbalance.SiteID,
			RackID:               imbalance.RackID,
			TS:                   imbalance.TS,
			ActionType:           ActionThermalManagement,
			Priority:             thermalPriority,
			Description: fmt.Sprintf(
				"Temperature imbalance of %.1fC detected. Review HVAC settings and airflow distribution.",
				imbalance.MaxTempDeltaC),
			EstimatedDurationMin: 30,
			EstimatedRecoveryMWh: 0,
			Status:               StatusPending,
		})
	}

	return actions
}

func (e *Engine) severity(voltageDelta, tempDelta float64) Severity {
	switch {
	case voltageDelta >= e.criticalVoltageMV || tempDelta >= e.criticalTempC:
		return SeverityCritical
	case voltageDelta >= e.voltageThresholdMV*1.5 || tempDelta >= e.tempThresholdC*1.5:
		return SeverityHigh
	case voltageDelta >= e.voltageThresholdMV || tempDelta >= e.tempThresholdC:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func spread(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

func argmin(values []float64) int {
	idx := 0
	for i, v := range values {
		if v < values[idx] {
			idx = i
		}
	}
	return idx
}

func argmax(values []float64) int {
	idx := 0
	for i, v := range values {
		if v > values[idx] {
			idx = i
		}
	}
	return idx
}

func cellID(ids []string, index int) string {
	if index < len(ids) {
		return ids[index]
	}
	return fmt.Sprintf("cell_%d", index)
}
