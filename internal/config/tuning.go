package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for detector and analysis tuning.
// All fields are pointers so a partial JSON file overrides only what it
// names; the Get* accessors supply defaults for everything else. The target
// ranges are runtime-mutable configuration, not fixed constants.
type TuningConfig struct {
	// Detector params
	WindowMs          *int64   `json:"window_ms,omitempty"`
	MinSamples        *int     `json:"min_samples,omitempty"`
	CandidateLag      *int     `json:"candidate_lag,omitempty"`
	SmoothingRadius   *int     `json:"smoothing_radius,omitempty"`
	NeighborSpan      *int     `json:"neighbor_span,omitempty"`
	MinProminence     *float64 `json:"min_prominence,omitempty"`
	MinExtremumGapMs  *int64   `json:"min_extremum_gap_ms,omitempty"`
	CadenceMinRPM     *float64 `json:"cadence_min_rpm,omitempty"`
	CadenceMaxRPM     *float64 `json:"cadence_max_rpm,omitempty"`
	SteadyPeriods     *int     `json:"steady_periods,omitempty"`
	SteadyTolerance   *float64 `json:"steady_tolerance,omitempty"`
	StopTimeoutMs     *int64   `json:"stop_timeout_ms,omitempty"`
	ExtremumHistoryMs *int64   `json:"extremum_history_ms,omitempty"`

	// Session analysis params
	TrimWindowMs *int64 `json:"trim_window_ms,omitempty"`

	// Target angle ranges (degrees)
	KneeTargetMin  *float64 `json:"knee_target_min,omitempty"`
	KneeTargetMax  *float64 `json:"knee_target_max,omitempty"`
	HipTargetMin   *float64 `json:"hip_target_min,omitempty"`
	HipTargetMax   *float64 `json:"hip_target_max,omitempty"`
	TorsoTargetMin *float64 `json:"torso_target_min,omitempty"`
	TorsoTargetMax *float64 `json:"torso_target_max,omitempty"`
	ElbowTargetMin *float64 `json:"elbow_target_min,omitempty"`
	ElbowTargetMax *float64 `json:"elbow_target_max,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset, so every
// accessor falls back to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are internally consistent.
func (c *TuningConfig) Validate() error {
	if c.WindowMs != nil && *c.WindowMs <= 0 {
		return fmt.Errorf("window_ms must be positive, got %d", *c.WindowMs)
	}
	if c.MinSamples != nil && *c.MinSamples < 3 {
		return fmt.Errorf("min_samples must be at least 3, got %d", *c.MinSamples)
	}
	if c.MinProminence != nil && (*c.MinProminence < 0 || *c.MinProminence > 1) {
		return fmt.Errorf("min_prominence must be between 0 and 1, got %f", *c.MinProminence)
	}
	if c.SteadyTolerance != nil && (*c.SteadyTolerance <= 0 || *c.SteadyTolerance >= 1) {
		return fmt.Errorf("steady_tolerance must be in (0,1), got %f", *c.SteadyTolerance)
	}

	cadenceMin := c.GetCadenceMinRPM()
	cadenceMax := c.GetCadenceMaxRPM()
	if cadenceMin >= cadenceMax {
		return fmt.Errorf("cadence band invalid: min %f >= max %f", cadenceMin, cadenceMax)
	}

	ranges := []struct {
		name     string
		min, max float64
	}{
		{"knee", c.GetKneeTargetMin(), c.GetKneeTargetMax()},
		{"hip", c.GetHipTargetMin(), c.GetHipTargetMax()},
		{"torso", c.GetTorsoTargetMin(), c.GetTorsoTargetMax()},
		{"elbow", c.GetElbowTargetMin(), c.GetElbowTargetMax()},
	}
	for _, r := range ranges {
		if r.min >= r.max {
			return fmt.Errorf("%s target range invalid: min %f >= max %f", r.name, r.min, r.max)
		}
	}

	return nil
}

// GetWindowMs returns the sample window duration in milliseconds.
func (c *TuningConfig) GetWindowMs() int64 {
	if c.WindowMs == nil {
		return 4000
	}
	return *c.WindowMs
}

// GetMinSamples returns the minimum buffered samples before detection runs.
func (c *TuningConfig) GetMinSamples() int {
	if c.MinSamples == nil {
		return 10
	}
	return *c.MinSamples
}

// GetCandidateLag returns how many samples behind the newest the extremum
// candidate sits.
func (c *TuningConfig) GetCandidateLag() int {
	if c.CandidateLag == nil {
		return 5
	}
	return *c.CandidateLag
}

// GetSmoothingRadius returns the half-width of the moving-average window
// (radius 2 gives a 5-point average).
func (c *TuningConfig) GetSmoothingRadius() int {
	if c.SmoothingRadius == nil {
		return 2
	}
	return *c.SmoothingRadius
}

// GetNeighborSpan returns how many samples either side of the candidate are
// compared during extremum detection.
func (c *TuningConfig) GetNeighborSpan() int {
	if c.NeighborSpan == nil {
		return 5
	}
	return *c.NeighborSpan
}

// GetMinProminence returns the minimum deviation from the window mean, in
// normalized coordinate units, for an extremum to register.
func (c *TuningConfig) GetMinProminence() float64 {
	if c.MinProminence == nil {
		return 0.01
	}
	return *c.MinProminence
}

// GetMinExtremumGapMs returns the minimum spacing between two accepted peaks
// (or two accepted troughs).
func (c *TuningConfig) GetMinExtremumGapMs() int64 {
	if c.MinExtremumGapMs == nil {
		return 300
	}
	return *c.MinExtremumGapMs
}

// GetCadenceMinRPM returns the lower bound of the plausible cadence band.
func (c *TuningConfig) GetCadenceMinRPM() float64 {
	if c.CadenceMinRPM == nil {
		return 40
	}
	return *c.CadenceMinRPM
}

// GetCadenceMaxRPM returns the upper bound of the plausible cadence band.
func (c *TuningConfig) GetCadenceMaxRPM() float64 {
	if c.CadenceMaxRPM == nil {
		return 120
	}
	return *c.CadenceMaxRPM
}

// GetSteadyPeriods returns how many recent periods feed the steadiness
// predicate.
func (c *TuningConfig) GetSteadyPeriods() int {
	if c.SteadyPeriods == nil {
		return 3
	}
	return *c.SteadyPeriods
}

// GetSteadyTolerance returns the maximum relative period deviation for the
// motion to count as steady.
func (c *TuningConfig) GetSteadyTolerance() float64 {
	if c.SteadyTolerance == nil {
		return 0.25
	}
	return *c.SteadyTolerance
}

// GetStopTimeoutMs returns how long without an accepted cycle counts as
// stopped motion.
func (c *TuningConfig) GetStopTimeoutMs() int64 {
	if c.StopTimeoutMs == nil {
		return 2000
	}
	return *c.StopTimeoutMs
}

// GetExtremumHistoryMs returns how long peaks and troughs are retained.
// Defaults to twice the sample window.
func (c *TuningConfig) GetExtremumHistoryMs() int64 {
	if c.ExtremumHistoryMs == nil {
		return 2 * c.GetWindowMs()
	}
	return *c.ExtremumHistoryMs
}

// GetTrimWindowMs returns the trailing dismount-trim window.
func (c *TuningConfig) GetTrimWindowMs() int64 {
	if c.TrimWindowMs == nil {
		return 5000
	}
	return *c.TrimWindowMs
}

// GetKneeTargetMin returns the knee extension target lower bound (degrees).
func (c *TuningConfig) GetKneeTargetMin() float64 {
	if c.KneeTargetMin == nil {
		return 140
	}
	return *c.KneeTargetMin
}

// GetKneeTargetMax returns the knee extension target upper bound (degrees).
func (c *TuningConfig) GetKneeTargetMax() float64 {
	if c.KneeTargetMax == nil {
		return 150
	}
	return *c.KneeTargetMax
}

// GetHipTargetMin returns the hip closure target lower bound (degrees).
func (c *TuningConfig) GetHipTargetMin() float64 {
	if c.HipTargetMin == nil {
		return 45
	}
	return *c.HipTargetMin
}

// GetHipTargetMax returns the hip closure target upper bound (degrees).
func (c *TuningConfig) GetHipTargetMax() float64 {
	if c.HipTargetMax == nil {
		return 65
	}
	return *c.HipTargetMax
}

// GetTorsoTargetMin returns the torso tilt target lower bound (degrees).
func (c *TuningConfig) GetTorsoTargetMin() float64 {
	if c.TorsoTargetMin == nil {
		return 35
	}
	return *c.TorsoTargetMin
}

// GetTorsoTargetMax returns the torso tilt target upper bound (degrees).
func (c *TuningConfig) GetTorsoTargetMax() float64 {
	if c.TorsoTargetMax == nil {
		return 50
	}
	return *c.TorsoTargetMax
}

// GetElbowTargetMin returns the elbow bend target lower bound (degrees).
func (c *TuningConfig) GetElbowTargetMin() float64 {
	if c.ElbowTargetMin == nil {
		return 150
	}
	return *c.ElbowTargetMin
}

// GetElbowTargetMax returns the elbow bend target upper bound (degrees).
func (c *TuningConfig) GetElbowTargetMax() float64 {
	if c.ElbowTargetMax == nil {
		return 165
	}
	return *c.ElbowTargetMax
}
