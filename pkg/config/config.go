package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the engine tuning configuration.
type Config struct {
	Debounce   DebounceConfig   `yaml:"debounce"`
	Cache      CacheConfig      `yaml:"cache"`
	Decimation DecimationConfig `yaml:"decimation"`
	Range      RangeConfig      `yaml:"range"`
}

// DebounceConfig contains viewport/input coalescing parameters.
type DebounceConfig struct {
	QuietWindow   time.Duration `yaml:"quiet_window"`   // viewport-change debounce delay
	WheelInterval time.Duration `yaml:"wheel_interval"` // wheel delta flush tick
}

// CacheConfig contains LOD render cache limits.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"` // high-water mark for eviction
}

// DecimationConfig contains the detail-level decision thresholds.
type DecimationConfig struct {
	LTTBFactor       float64 `yaml:"lttb_factor"`       // target samples per pixel for LTTB
	MinMaxThreshold  float64 `yaml:"minmax_threshold"`  // points-per-pixel at which min-max takes over
	PassthroughRatio float64 `yaml:"passthrough_ratio"` // points-per-pixel below which no decimation runs
	SmallSegment     int     `yaml:"small_segment"`     // segments at or below this length pass through
	CapPoints        int     `yaml:"cap_points"`        // safety cap on target points
	GapFactor        float64 `yaml:"gap_factor"`        // time gap vs. min spacing that splits a segment
	DefaultPixels    int     `yaml:"default_pixels"`    // pixel budget assumed when the viewport reports none
	ViewportMargin   float64 `yaml:"viewport_margin"`   // fractional slice margin on each side of the window
}

// RangeConfig contains global Y-range locking parameters.
type RangeConfig struct {
	PadFraction float64 `yaml:"pad_fraction"` // padding applied around locked ranges
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Debounce: DebounceConfig{
			QuietWindow:   200 * time.Millisecond,
			WheelInterval: 14 * time.Millisecond, // ~70 Hz
		},
		Cache: CacheConfig{
			MaxEntries: 5000,
		},
		Decimation: DecimationConfig{
			LTTBFactor:       2.0,
			MinMaxThreshold:  8.0,
			PassthroughRatio: 1.2,
			SmallSegment:     64,
			CapPoints:        10000,
			GapFactor:        10.0,
			DefaultPixels:    500,
			ViewportMargin:   0.02,
		},
		Range: RangeConfig{
			PadFraction: 0.05,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Debounce.QuietWindow <= 0 {
		c.Debounce.QuietWindow = def.Debounce.QuietWindow
	}
	if c.Debounce.WheelInterval <= 0 {
		c.Debounce.WheelInterval = def.Debounce.WheelInterval
	}

	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}

	if c.Decimation.LTTBFactor <= 0 {
		c.Decimation.LTTBFactor = def.Decimation.LTTBFactor
	}
	if c.Decimation.MinMaxThreshold <= 0 {
		c.Decimation.MinMaxThreshold = def.Decimation.MinMaxThreshold
	}
	if c.Decimation.PassthroughRatio <= 0 {
		c.Decimation.PassthroughRatio = def.Decimation.PassthroughRatio
	}
	if c.Decimation.SmallSegment <= 0 {
		c.Decimation.SmallSegment = def.Decimation.SmallSegment
	}
	if c.Decimation.CapPoints <= 0 {
		c.Decimation.CapPoints = def.Decimation.CapPoints
	}
	if c.Decimation.GapFactor <= 0 {
		c.Decimation.GapFactor = def.Decimation.GapFactor
	}
	if c.Decimation.DefaultPixels <= 0 {
		c.Decimation.DefaultPixels = def.Decimation.DefaultPixels
	}
	if c.Decimation.ViewportMargin < 0 {
		c.Decimation.ViewportMargin = def.Decimation.ViewportMargin
	}

	if c.Range.PadFraction <= 0 {
		c.Range.PadFraction = def.Range.PadFraction
	}
}
