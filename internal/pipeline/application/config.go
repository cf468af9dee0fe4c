package application

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteParams defines per-site battery parameters and engine thresholds.
type SiteParams struct {
	CapacityMWh    float64 `yaml:"capacity_mwh"`
	MaxPowerKW     float64 `yaml:"max_power_kw"`
	HSLDefaultPct  float64 `yaml:"hsl_default_pct"`
	LSLDefaultPct  float64 `yaml:"lsl_default_pct"`
	DriftThreshold float64 `yaml:"drift_threshold_pct"`
	MinSoCPct      float64 `yaml:"min_soc_pct"`
	MaxSoCPct      float64 `yaml:"max_soc_pct"`
	RevenuePerMWh  float64 `yaml:"revenue_per_mwh_gbp"`
}

// BalancingThresholds defines rack imbalance detection thresholds.
type BalancingThresholds struct {
	VoltageWarningMV  float64 `yaml:"voltage_warning_mv"`
	VoltageCriticalMV float64 `yaml:"voltage_critical_mv"`
	TempWarningC      float64 `yaml:"temp_warning_c"`
	TempCriticalC     float64 `yaml:"temp_critical_c"`
}

// Config defines pipeline configuration.
type Config struct {
	Defaults  SiteParams            `yaml:"defaults"`
	Sites     map[string]SiteParams `yaml:"sites"`
	Balancing BalancingThresholds   `yaml:"balancing"`
	Horizons  []int                 `yaml:"horizons"`
	SiteIDs   []string              `yaml:"site_ids"`
}

// LoadConfig loads pipeline config from yaml or env. The yaml path comes
// from EDGE_CONFIG; env fallbacks cover the site list and capacity.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: SiteParams{
			CapacityMWh:    getenvFloatDefault("SITE_CAPACITY_MWH", 100),
			MaxPowerKW:     getenvFloatDefault("SITE_MAX_POWER_KW", 25000),
			HSLDefaultPct:  95,
			LSLDefaultPct:  10,
			DriftThreshold: 2,
			MinSoCPct:      10,
			MaxSoCPct:      95,
			RevenuePerMWh:  getenvFloatDefault("REVENUE_PER_MWH_GBP", 100),
		},
		Balancing: BalancingThresholds{
			VoltageWarningMV:  50,
			VoltageCriticalMV: 100,
			TempWarningC:      5,
			TempCriticalC:     10,
		},
	}

	if path := os.Getenv("EDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.SiteIDs) == 0 {
		cfg.SiteIDs = splitCSV(getenvDefault("EDGE_SITES", ""))
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{15, 30, 60, 120, 240}
	}
	return cfg, cfg.Validate()
}

// Validate rejects configuration the engines would refuse at construction.
func (c Config) Validate() error {
	params := []SiteParams{c.Defaults}
	for _, siteID := range c.SiteIDs {
		params = append(params, c.ParamsForSite(siteID))
	}
	for _, p := range params {
		if p.CapacityMWh <= 0 {
			return errors.New("pipeline config: non-positive capacity")
		}
		if p.MaxPowerKW <= 0 {
			return errors.New("pipeline config: non-positive max power")
		}
		if p.HSLDefaultPct <= p.LSLDefaultPct {
			return errors.New("pipeline config: hsl default must exceed lsl default")
		}
		if p.DriftThreshold <= 0 {
			return errors.New("pipeline config: non-positive drift threshold")
		}
		if p.RevenuePerMWh <= 0 {
			return errors.New("pipeline config: non-positive revenue per mwh")
		}
	}
	b := c.Balancing
	if b.VoltageWarningMV <= 0 || b.VoltageCriticalMV < b.VoltageWarningMV {
		return errors.New("pipeline config: invalid voltage thresholds")
	}
	if b.TempWarningC <= 0 || b.TempCriticalC < b.TempWarningC {
		return errors.New("pipeline config: invalid temperature thresholds")
	}
	for _, horizon := range c.Horizons {
		if horizon < 0 {
			return errors.New("pipeline config: negative horizon")
		}
	}
	return nil
}

// ParamsForSite returns defaults merged with any per-site override.
func (c Config) ParamsForSite(siteID string) SiteParams {
	if c.Sites != nil {
		if override, ok := c.Sites[siteID]; ok {
			return mergeParams(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeParams(base, override SiteParams) SiteParams {
	if override.CapacityMWh != 0 {
		base.CapacityMWh = override.CapacityMWh
	}
	if override.MaxPowerKW != 0 {
		base.MaxPowerKW = override.MaxPowerKW
	}
	if override.HSLDefaultPct != 0 {
		base.HSLDefaultPct = override.HSLDefaultPct
	}
	if override.LSLDefaultPct != 0 {
		base.LSLDefaultPct = override.LSLDefaultPct
	}
	if override.DriftThreshold != 0 {
		base.DriftThreshold = override.DriftThreshold
	}
	if override.MinSoCPct != 0 {
		base.MinSoCPct = override.MinSoCPct
	}
	if override.MaxSoCPct != 0 {
		base.MaxSoCPct = override.MaxSoCPct
	}
	if override.RevenuePerMWh != 0 {
		base.RevenuePerMWh = override.RevenuePerMWh
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
