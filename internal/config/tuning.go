package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for navigation and haptic
// tuning parameters. Fields omitted from the JSON file retain their
// defaults, so partial configs are safe.
type TuningConfig struct {
	// Progress tracker thresholds
	StepProximityM *float64 `json:"step_proximity_m,omitempty"`
	ArrivalM       *float64 `json:"arrival_m,omitempty"`
	PreAlertM      *float64 `json:"pre_alert_m,omitempty"`

	// Position sample gating
	MaxAccuracyM *float64 `json:"max_accuracy_m,omitempty"`
	MaxSampleAge *string  `json:"max_sample_age,omitempty"` // duration string like "10s"

	// Haptic engine failure policy
	FailureThreshold *int    `json:"failure_threshold,omitempty"`
	CooldownWindow   *string `json:"cooldown_window,omitempty"` // duration string like "60s"

	// Session controller
	RouteTimeout *string `json:"route_timeout,omitempty"` // duration string like "30s"

	// Actuator serial link
	BaudRate *int    `json:"baud_rate,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size.
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

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
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
	for name, v := range map[string]*float64{
		"step_proximity_m": c.StepProximityM,
		"arrival_m":        c.ArrivalM,
		"pre_alert_m":      c.PreAlertM,
		"max_accuracy_m":   c.MaxAccuracyM,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.FailureThreshold != nil && *c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", *c.FailureThreshold)
	}

	for name, v := range map[string]*string{
		"max_sample_age":  c.MaxSampleAge,
		"cooldown_window": c.CooldownWindow,
		"route_timeout":   c.RouteTimeout,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	return nil
}

// GetStepProximityM returns the step-proximity threshold or the default.
func (c *TuningConfig) GetStepProximityM() float64 {
	if c.StepProximityM == nil {
		return 50.0 // default
	}
	return *c.StepProximityM
}

// GetArrivalM returns the arrival threshold or the default.
func (c *TuningConfig) GetArrivalM() float64 {
	if c.ArrivalM == nil {
		return 20.0 // default
	}
	return *c.ArrivalM
}

// GetPreAlertM returns the haptic pre-alert threshold or the default.
func (c *TuningConfig) GetPreAlertM() float64 {
	if c.PreAlertM == nil {
		return 100.0 // default
	}
	return *c.PreAlertM
}

// GetMaxAccuracyM returns the worst usable horizontal accuracy or the default.
func (c *TuningConfig) GetMaxAccuracyM() float64 {
	if c.MaxAccuracyM == nil {
		return 50.0 // default
	}
	return *c.MaxAccuracyM
}

// GetMaxSampleAge parses and returns the sample staleness bound.
func (c *TuningConfig) GetMaxSampleAge() time.Duration {
	if c.MaxSampleAge == nil || *c.MaxSampleAge == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.MaxSampleAge)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetFailureThreshold returns the consecutive-failure count that opens the
// cooldown window.
func (c *TuningConfig) GetFailureThreshold() int {
	if c.FailureThreshold == nil {
		return 3 // default
	}
	return *c.FailureThreshold
}

// GetCooldownWindow parses and returns the cooldown window duration.
func (c *TuningConfig) GetCooldownWindow() time.Duration {
	if c.CooldownWindow == nil || *c.CooldownWindow == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CooldownWindow)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetRouteTimeout parses and returns the caller-side route calculation timeout.
func (c *TuningConfig) GetRouteTimeout() time.Duration {
	if c.RouteTimeout == nil || *c.RouteTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RouteTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetBaudRate returns the actuator serial baud rate or the default.
func (c *TuningConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200 // default
	}
	return *c.BaudRate
}

// GetParity returns the actuator serial parity or the default.
func (c *TuningConfig) GetParity() string {
	if c.Parity == nil || *c.Parity == "" {
		return "N" // default
	}
	return *c.Parity
}
