package signal

import (
	"math"
	"testing"
	"time"
)

func mustEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	engine, err := NewEngine(100, 25000, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func repeat(value float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return values
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	if _, err := NewEngine(0, 25000); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewEngine(100, -1); err == nil {
		t.Fatal("expected error for negative max power")
	}
	if _, err := NewEngine(100, 25000, WithSafetyDefaults(10, 95)); err == nil {
		t.Fatal("expected error for inverted safety defaults")
	}
	if _, err := NewEngine(100, 25000, WithDriftThreshold(0)); err == nil {
		t.Fatal("expected error for zero drift threshold")
	}
}

func TestProcessHealthySample(t *testing.T) {
	engine := mustEngine(t)
	// 3100 mV maps to 50% on the OCV curve, matching the raw reading.
	result := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 10), repeat(25, 10), 25)

	if result.DriftDetected {
		t.Fatal("expected no drift for matching OCV estimate")
	}
	if result.CorrectionApplied {
		t.Fatal("expected no correction")
	}
	if result.TrustScore != 100 {
		t.Fatalf("trust score = %v, want 100", result.TrustScore)
	}
	if math.Abs(result.SoCPctCorrected-50) > 1e-9 {
		t.Fatalf("corrected soc = %v, want 50", result.SoCPctCorrected)
	}
	if result.HSLSoCPct != 95 || result.LSLSoCPct != 10 {
		t.Fatalf("safety band = %v/%v, want 95/10", result.HSLSoCPct, result.LSLSoCPct)
	}
	// 50% - 10% LSL = 40% of 100 MWh.
	if math.Abs(result.SoEMWhCorrected-40) > 1e-9 {
		t.Fatalf("soe = %v, want 40", result.SoEMWhCorrected)
	}
	if result.SoPChargeKW != 25000 || result.SoPDischargeKW != 25000 {
		t.Fatalf("sop = %v/%v, want full rating", result.SoPChargeKW, result.SoPDischargeKW)
	}
}

func TestProcessMissingCellDataNeverFails(t *testing.T) {
	engine := mustEngine(t)
	result := engine.Process("SITE001", time.Now().UTC(), 50, nil, nil, 25)

	if result.SoCPctCorrected != 50 {
		t.Fatalf("corrected soc = %v, want raw passthrough", result.SoCPctCorrected)
	}
	// -20 missing voltages, -10 missing temperatures.
	if result.TrustScore != 70 {
		t.Fatalf("trust score = %v, want 70", result.TrustScore)
	}
	if result.DriftDetected || result.CorrectionApplied {
		t.Fatal("expected no drift handling without voltages")
	}
}

func TestProcessDriftBlending(t *testing.T) {
	engine := mustEngine(t)
	// 3160 mV -> 60% estimate against a 50% raw reading: drift 10, blend 0.5.
	result := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3160, 10), repeat(25, 10), 25)

	if !result.DriftDetected || !result.CorrectionApplied {
		t.Fatal("expected drift correction")
	}
	if math.Abs(result.SoCPctCorrected-55) > 1e-6 {
		t.Fatalf("corrected soc = %v, want 55", result.SoCPctCorrected)
	}
}

func TestTrustScoreStaysInRange(t *testing.T) {
	engine := mustEngine(t)
	noisyVoltages := []float64{2500, 3600, 2500, 3600, 2500, 3600}
	noisyTemps := []float64{-10, 55, -10, 55, -10, 55}

	cases := []struct {
		name     string
		soc      float64
		voltages []float64
		temps    []float64
	}{
		{"clean", 50, repeat(3100, 4), repeat(25, 4)},
		{"noisy", 99, noisyVoltages, noisyTemps},
		{"missing", 2, nil, nil},
		{"extreme soc", 150, noisyVoltages, nil},
	}
	for _, tc := range cases {
		result := engine.Process("SITE001", time.Now().UTC(), tc.soc, tc.voltages, tc.temps, 25)
		if result.TrustScore < 0 || result.TrustScore > 100 {
			t.Fatalf("%s: trust score %v out of range", tc.name, result.TrustScore)
		}
	}
}

func TestSafetyBandOrderingAcrossTemperatures(t *testing.T) {
	engine := mustEngine(t)
	for temp := -20.0; temp <= 60; temp++ {
		result := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 4), repeat(temp, 4), temp)
		if result.HSLSoCPct < result.LSLSoCPct {
			t.Fatalf("temp %v: hsl %v below lsl %v", temp, result.HSLSoCPct, result.LSLSoCPct)
		}
	}
}

func TestSafetyBandDerating(t *testing.T) {
	engine := mustEngine(t)

	hot := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 4), repeat(45, 4), 40)
	// 95 - 2*(45-35) = 75, floored at 80.
	if hot.HSLSoCPct != 80 {
		t.Fatalf("hot hsl = %v, want 80", hot.HSLSoCPct)
	}

	cold := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 4), repeat(2, 4), 0)
	// 10 + 2*(10-2) = 26, capped at 20.
	if cold.LSLSoCPct != 20 {
		t.Fatalf("cold lsl = %v, want 20", cold.LSLSoCPct)
	}
}

func TestSoEMonotonicInSoC(t *testing.T) {
	engine := mustEngine(t)
	previous := -1.0
	for soc := 0.0; soc <= 100; soc += 5 {
		soe := engine.stateOfEnergy(soc, 95, 10)
		if soe < previous {
			t.Fatalf("soe decreased at soc %v: %v < %v", soc, soe, previous)
		}
		if soe < 0 {
			t.Fatalf("negative soe at soc %v", soc)
		}
		previous = soe
	}
}

func TestStateOfPowerDerating(t *testing.T) {
	engine := mustEngine(t)

	high := engine.Process("SITE001", time.Now().UTC(), 95, repeat(3380, 4), repeat(25, 4), 25)
	if high.SoPChargeKW >= 25000 {
		t.Fatalf("charge limit %v not derated above 90%% soc", high.SoPChargeKW)
	}
	if high.SoPChargeKW < 0 {
		t.Fatalf("negative charge limit %v", high.SoPChargeKW)
	}

	low := engine.Process("SITE001", time.Now().UTC(), 5, repeat(2820, 4), repeat(25, 4), 25)
	if low.SoPDischargeKW >= 25000 {
		t.Fatalf("discharge limit %v not derated below 10%% soc", low.SoPDischargeKW)
	}

	hot := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 4), repeat(44, 4), 30)
	// derate = min(0.5, 0.4) -> 60% of rating on both directions.
	if math.Abs(hot.SoPChargeKW-15000) > 1e-6 || math.Abs(hot.SoPDischargeKW-15000) > 1e-6 {
		t.Fatalf("hot sop = %v/%v, want 15000/15000", hot.SoPChargeKW, hot.SoPDischargeKW)
	}

	cold := engine.Process("SITE001", time.Now().UTC(), 50, repeat(3100, 4), repeat(0, 4), 0)
	if math.Abs(cold.SoPChargeKW-12500) > 1e-6 {
		t.Fatalf("cold charge = %v, want 12500", cold.SoPChargeKW)
	}
	if cold.SoPDischargeKW != 25000 {
		t.Fatalf("cold discharge = %v, want full rating", cold.SoPDischargeKW)
	}
}
