package insights

import (
	"math"
	"testing"
	"time"
)

func mustEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(100, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func healthySnapshot() Snapshot {
	return Snapshot{
		SiteID:         "SITE001",
		TS:             time.Now().UTC(),
		TrustScore:     100,
		SoCDrift:       0,
		TimeToEmptyMin: nil,
		SoPChargeKW:    25000,
		SoPDischargeKW: 25000,
		MaxPowerKW:     25000,
		ImbalanceScore: 0,
		MaxTempC:       25,
		AvgTempC:       25,
	}
}

func floatPtr(v float64) *float64 { return &v }

func findByCategory(findings []Finding, category Category) *Finding {
	for i := range findings {
		if findings[i].Category == category {
			return &findings[i]
		}
	}
	return nil
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	if _, err := NewEngine(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewEngine(100, WithRevenuePerMWh(-5)); err == nil {
		t.Fatal("expected error for negative revenue")
	}
}

func TestHealthySnapshotYieldsNoFindings(t *testing.T) {
	engine := mustEngine(t)
	if findings := engine.Analyze(healthySnapshot()); len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestSignalQualityLadder(t *testing.T) {
	engine := mustEngine(t)
	cases := []struct {
		trust      float64
		severity   Severity
		wantImpact float64
	}{
		{65, SeverityWarning, 100},
		{55, SeverityAlert, 300},
		{45, SeverityCritical, 500},
	}
	for _, tc := range cases {
		snap := healthySnapshot()
		snap.TrustScore = tc.trust
		findings := engine.Analyze(snap)
		finding := findByCategory(findings, CategorySignalQuality)
		if finding == nil {
			t.Fatalf("trust %v: no signal quality finding", tc.trust)
		}
		if finding.Severity != tc.severity {
			t.Fatalf("trust %v: severity = %s, want %s", tc.trust, finding.Severity, tc.severity)
		}
		// capacity 100 MWh * £100/MWh * coefficient.
		if math.Abs(finding.EstimatedValueGBP-tc.wantImpact) > 1e-9 {
			t.Fatalf("trust %v: impact = %v, want %v", tc.trust, finding.EstimatedValueGBP, tc.wantImpact)
		}
		if finding.Confidence != 0.85 {
			t.Fatalf("trust %v: confidence = %v, want 0.85", tc.trust, finding.Confidence)
		}
	}
}

func TestEnergyAvailabilityRule(t *testing.T) {
	engine := mustEngine(t)

	snap := healthySnapshot()
	snap.TimeToEmptyMin = floatPtr(45)
	finding := findByCategory(engine.Analyze(snap), CategoryEnergyAvailability)
	if finding == nil {
		t.Fatal("expected finding at 45 minutes to empty")
	}
	if finding.Severity != SeverityAlert {
		t.Fatalf("severity = %s, want alert", finding.Severity)
	}

	snap.TimeToEmptyMin = floatPtr(20)
	finding = findByCategory(engine.Analyze(snap), CategoryEnergyAvailability)
	if finding.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", finding.Severity)
	}
	if math.Abs(finding.EstimatedValueGBP-1000) > 1e-9 {
		t.Fatalf("impact = %v, want 1000", finding.EstimatedValueGBP)
	}

	snap.TimeToEmptyMin = floatPtr(120)
	if f := findByCategory(engine.Analyze(snap), CategoryEnergyAvailability); f != nil {
		t.Fatal("expected no finding above 60 minutes")
	}
}

func TestPowerConstraintRule(t *testing.T) {
	engine := mustEngine(t)

	snap := healthySnapshot()
	snap.SoPChargeKW = 21000 // 16% derate
	finding := findByCategory(engine.Analyze(snap), CategoryPowerConstraints)
	if finding == nil {
		t.Fatal("expected finding at 16% derate")
	}
	if finding.Severity != SeverityWarning {
		t.Fatalf("severity = %s, want warning", finding.Severity)
	}

	snap.SoPChargeKW = 18000 // 28% derate
	finding = findByCategory(engine.Analyze(snap), CategoryPowerConstraints)
	if finding.Severity != SeverityAlert {
		t.Fatalf("severity = %s, want alert", finding.Severity)
	}

	snap.SoPDischargeKW = 15000 // 40% derate via discharge side
	finding = findByCategory(engine.Analyze(snap), CategoryPowerConstraints)
	if finding.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", finding.Severity)
	}
	// 100 * 100 * 0.4 * 0.5.
	if math.Abs(finding.EstimatedValueGBP-2000) > 1e-9 {
		t.Fatalf("impact = %v, want 2000", finding.EstimatedValueGBP)
	}

	snap = healthySnapshot()
	snap.SoPChargeKW = 24000 // 4% derate, below trigger
	if f := findByCategory(engine.Analyze(snap), CategoryPowerConstraints); f != nil {
		t.Fatal("expected no finding below 10% derate")
	}
}

func TestImbalanceRule(t *testing.T) {
	engine := mustEngine(t)
	cases := []struct {
		score    float64
		severity Severity
	}{
		{35, SeverityWarning},
		{50, SeverityAlert},
		{65, SeverityCritical},
	}
	for _, tc := range cases {
		snap := healthySnapshot()
		snap.ImbalanceScore = tc.score
		finding := findByCategory(engine.Analyze(snap), CategoryCellImbalance)
		if finding == nil {
			t.Fatalf("score %v: no imbalance finding", tc.score)
		}
		if finding.Severity != tc.severity {
			t.Fatalf("score %v: severity = %s, want %s", tc.score, finding.Severity, tc.severity)
		}
	}

	snap := healthySnapshot()
	snap.ImbalanceScore = 30
	if f := findByCategory(engine.Analyze(snap), CategoryCellImbalance); f != nil {
		t.Fatal("expected no finding at score 30")
	}
}

func TestThermalRule(t *testing.T) {
	engine := mustEngine(t)

	snap := healthySnapshot()
	snap.MaxTempC = 42
	snap.AvgTempC = 40
	finding := findByCategory(engine.Analyze(snap), CategoryThermal)
	if finding == nil {
		t.Fatal("expected thermal finding above 40C")
	}
	if finding.Severity != SeverityAlert {
		t.Fatalf("severity = %s, want alert", finding.Severity)
	}

	snap.MaxTempC = 47
	finding = findByCategory(engine.Analyze(snap), CategoryThermal)
	if finding.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", finding.Severity)
	}

	// Hot-spot trigger: delta above 5C with moderate absolute temperature.
	snap = healthySnapshot()
	snap.MaxTempC = 33
	snap.AvgTempC = 26
	finding = findByCategory(engine.Analyze(snap), CategoryThermal)
	if finding == nil {
		t.Fatal("expected thermal finding for 7C hot spot")
	}
	if finding.Severity != SeverityAlert {
		t.Fatalf("severity = %s, want alert for 7C delta", finding.Severity)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	engine := mustEngine(t)
	snap := healthySnapshot()
	snap.TrustScore = 40
	snap.ImbalanceScore = 70
	snap.MaxTempC = 48

	first := engine.Analyze(snap)
	second := engine.Analyze(snap)
	if len(first) != len(second) {
		t.Fatalf("finding counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("finding %d differs between runs", i)
		}
	}
}

func TestSeverityAndCategoryValid(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeverityWarning, SeverityAlert, SeverityCritical} {
		if !s.Valid() {
			t.Fatalf("severity %s should be valid", s)
		}
	}
	if Severity("fatal").Valid() {
		t.Fatal("unknown severity should be invalid")
	}
	if !CategoryThermal.Valid() || Category("misc").Valid() {
		t.Fatal("category validity mismatch")
	}
	if SeverityCritical.Rank() <= SeverityAlert.Rank() {
		t.Fatal("critical should outrank alert")
	}
}
