package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so a partial JSON file overrides only what it
// names; the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Matching params
	DistTolFt   *float64 `json:"dist_tol_ft,omitempty"`
	ClockTolDeg *float64 `json:"clock_tol_deg,omitempty"`
	CostThresh  *float64 `json:"cost_thresh,omitempty"`
	WeightDist  *float64 `json:"weight_dist,omitempty"`
	WeightClock *float64 `json:"weight_clock,omitempty"`
	WeightDepth *float64 `json:"weight_depth,omitempty"`
	WeightSize  *float64 `json:"weight_size,omitempty"`
	TypePenalty *float64 `json:"type_penalty,omitempty"`

	// Growth params
	CriticalDepthPct  *float64 `json:"critical_depth_pct,omitempty"`
	ForecastYears     *float64 `json:"forecast_years,omitempty"`
	AccelThresholdPct *float64 `json:"accel_threshold_pct,omitempty"`
	ModelCriterion    *string  `json:"model_criterion,omitempty"` // "bic" or "aic"

	// Clustering params
	ClusterEpsFt      *float64 `json:"cluster_eps_ft,omitempty"`
	ClusterMode       *string  `json:"cluster_mode,omitempty"` // "1d" or "2d"
	ClusterMinSamples *int     `json:"cluster_min_samples,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.DistTolFt != nil && *c.DistTolFt <= 0 {
		return fmt.Errorf("dist_tol_ft must be positive, got %f", *c.DistTolFt)
	}
	if c.ClockTolDeg != nil && (*c.ClockTolDeg <= 0 || *c.ClockTolDeg > 180) {
		return fmt.Errorf("clock_tol_deg must be in (0, 180], got %f", *c.ClockTolDeg)
	}
	if c.CostThresh != nil && *c.CostThresh <= 0 {
		return fmt.Errorf("cost_thresh must be positive, got %f", *c.CostThresh)
	}
	if c.CriticalDepthPct != nil && (*c.CriticalDepthPct <= 0 || *c.CriticalDepthPct > 100) {
		return fmt.Errorf("critical_depth_pct must be in (0, 100], got %f", *c.CriticalDepthPct)
	}
	if c.ForecastYears != nil && *c.ForecastYears < 0 {
		return fmt.Errorf("forecast_years must be non-negative, got %f", *c.ForecastYears)
	}
	if c.ClusterEpsFt != nil && *c.ClusterEpsFt <= 0 {
		return fmt.Errorf("cluster_eps_ft must be positive, got %f", *c.ClusterEpsFt)
	}
	if c.ClusterMode != nil && *c.ClusterMode != "1d" && *c.ClusterMode != "2d" {
		return fmt.Errorf("cluster_mode must be \"1d\" or \"2d\", got %q", *c.ClusterMode)
	}
	if c.ClusterMinSamples != nil && *c.ClusterMinSamples < 1 {
		return fmt.Errorf("cluster_min_samples must be at least 1, got %d", *c.ClusterMinSamples)
	}
	if c.ModelCriterion != nil && *c.ModelCriterion != "bic" && *c.ModelCriterion != "aic" {
		return fmt.Errorf("model_criterion must be \"bic\" or \"aic\", got %q", *c.ModelCriterion)
	}
	return nil
}

// GetDistTolFt returns the dist_tol_ft value or the default.
func (c *TuningConfig) GetDistTolFt() float64 {
	if c.DistTolFt == nil {
		return 10.0 // default
	}
	return *c.DistTolFt
}

// GetClockTolDeg returns the clock_tol_deg value or the default.
func (c *TuningConfig) GetClockTolDeg() float64 {
	if c.ClockTolDeg == nil {
		return 15.0
	}
	return *c.ClockTolDeg
}

// GetCostThresh returns the cost_thresh value or the default.
func (c *TuningConfig) GetCostThresh() float64 {
	if c.CostThresh == nil {
		return 15.0
	}
	return *c.CostThresh
}

// GetWeightDist returns the weight_dist value or the default.
func (c *TuningConfig) GetWeightDist() float64 {
	if c.WeightDist == nil {
		return 1.0
	}
	return *c.WeightDist
}

// GetWeightClock returns the weight_clock value or the default.
func (c *TuningConfig) GetWeightClock() float64 {
	if c.WeightClock == nil {
		return 0.5
	}
	return *c.WeightClock
}

// GetWeightDepth returns the weight_depth value or the default.
func (c *TuningConfig) GetWeightDepth() float64 {
	if c.WeightDepth == nil {
		return 0.1
	}
	return *c.WeightDepth
}

// GetWeightSize returns the weight_size value or the default.
func (c *TuningConfig) GetWeightSize() float64 {
	if c.WeightSize == nil {
		return 0.05
	}
	return *c.WeightSize
}

// GetTypePenalty returns the type_penalty value or the default.
func (c *TuningConfig) GetTypePenalty() float64 {
	if c.TypePenalty == nil {
		return 10.0
	}
	return *c.TypePenalty
}

// GetCriticalDepthPct returns the critical_depth_pct value or the default.
func (c *TuningConfig) GetCriticalDepthPct() float64 {
	if c.CriticalDepthPct == nil {
		return 80.0 // industry repair threshold
	}
	return *c.CriticalDepthPct
}

// GetForecastYears returns the forecast_years value or the default.
func (c *TuningConfig) GetForecastYears() float64 {
	if c.ForecastYears == nil {
		return 5.0
	}
	return *c.ForecastYears
}

// GetAccelThresholdPct returns the accel_threshold_pct value or the default.
func (c *TuningConfig) GetAccelThresholdPct() float64 {
	if c.AccelThresholdPct == nil {
		return 50.0
	}
	return *c.AccelThresholdPct
}

// GetModelCriterion returns the model_criterion value or the default.
func (c *TuningConfig) GetModelCriterion() string {
	if c.ModelCriterion == nil {
		return "bic"
	}
	return *c.ModelCriterion
}

// GetClusterEpsFt returns the cluster_eps_ft value or the default.
func (c *TuningConfig) GetClusterEpsFt() float64 {
	if c.ClusterEpsFt == nil {
		return 50.0
	}
	return *c.ClusterEpsFt
}

// GetClusterMode returns the cluster_mode value or the default.
func (c *TuningConfig) GetClusterMode() string {
	if c.ClusterMode == nil {
		return "1d"
	}
	return *c.ClusterMode
}

// GetClusterMinSamples returns the cluster_min_samples value or the default.
func (c *TuningConfig) GetClusterMinSamples() int {
	if c.ClusterMinSamples == nil {
		return 2
	}
	return *c.ClusterMinSamples
}
