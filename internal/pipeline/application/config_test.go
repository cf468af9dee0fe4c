package application

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EDGE_CONFIG", "")
	t.Setenv("EDGE_SITES", "site-001,site-002")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := len(cfg.SiteIDs); got != 2 {
		t.Fatalf("len(SiteIDs) = %d, want 2", got)
	}
	if cfg.Defaults.CapacityMWh != 100 {
		t.Errorf("CapacityMWh = %v, want 100", cfg.Defaults.CapacityMWh)
	}
	if cfg.Defaults.HSLDefaultPct != 95 || cfg.Defaults.LSLDefaultPct != 10 {
		t.Errorf("safety defaults = %v/%v", cfg.Defaults.HSLDefaultPct, cfg.Defaults.LSLDefaultPct)
	}
	if got := len(cfg.Horizons); got != 5 {
		t.Errorf("len(Horizons) = %d, want 5", got)
	}
	if cfg.Balancing.VoltageCriticalMV != 100 {
		t.Errorf("VoltageCriticalMV = %v, want 100", cfg.Balancing.VoltageCriticalMV)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	content := `
site_ids: [site-001, site-002]
horizons: [15, 60]
defaults:
  capacity_mwh: 50
  max_power_kw: 12500
sites:
  site-002:
    capacity_mwh: 200
balancing:
  voltage_warning_mv: 40
  voltage_critical_mv: 90
  temp_warning_c: 4
  temp_critical_c: 9
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EDGE_CONFIG", path)
	t.Setenv("EDGE_SITES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	base := cfg.ParamsForSite("site-001")
	if base.CapacityMWh != 50 {
		t.Errorf("site-001 capacity = %v, want 50", base.CapacityMWh)
	}
	override := cfg.ParamsForSite("site-002")
	if override.CapacityMWh != 200 {
		t.Errorf("site-002 capacity = %v, want 200", override.CapacityMWh)
	}
	if override.MaxPowerKW != 12500 {
		t.Errorf("site-002 max power = %v, want inherited 12500", override.MaxPowerKW)
	}
	if override.DriftThreshold != 2 {
		t.Errorf("site-002 drift threshold = %v, want inherited 2", override.DriftThreshold)
	}
	if cfg.Balancing.VoltageWarningMV != 40 {
		t.Errorf("VoltageWarningMV = %v, want 40", cfg.Balancing.VoltageWarningMV)
	}
	if got := len(cfg.Horizons); got != 2 {
		t.Errorf("len(Horizons) = %d, want 2", got)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	base := Config{
		Defaults: SiteParams{
			CapacityMWh:    100,
			MaxPowerKW:     25000,
			HSLDefaultPct:  95,
			LSLDefaultPct:  10,
			DriftThreshold: 2,
			RevenuePerMWh:  100,
		},
		Balancing: BalancingThresholds{
			VoltageWarningMV:  50,
			VoltageCriticalMV: 100,
			TempWarningC:      5,
			TempCriticalC:     10,
		},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capacity", func(c *Config) { c.Defaults.CapacityMWh = 0 }},
		{"negative max power", func(c *Config) { c.Defaults.MaxPowerKW = -1 }},
		{"hsl below lsl", func(c *Config) { c.Defaults.HSLDefaultPct = 5 }},
		{"zero drift threshold", func(c *Config) { c.Defaults.DriftThreshold = 0 }},
		{"critical voltage below warning", func(c *Config) { c.Balancing.VoltageCriticalMV = 10 }},
		{"critical temp below warning", func(c *Config) { c.Balancing.TempCriticalC = 1 }},
		{"negative horizon", func(c *Config) { c.Horizons = []int{-15} }},
		{"bad site override", func(c *Config) {
			c.SiteIDs = []string{"site-009"}
			c.Sites = map[string]SiteParams{"site-009": {CapacityMWh: -5}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" site-001, ,site-002 ")
	if len(got) != 2 || got[0] != "site-001" || got[1] != "site-002" {
		t.Errorf("splitCSV = %v", got)
	}
	if splitCSV("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestNewIDShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 32 {
			t.Fatalf("id length = %d, want 32", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
