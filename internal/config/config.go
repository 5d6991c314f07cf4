// Package config loads the YAML configuration for the capturesimd demo
// binary: the simulated sensor, the raw buffer pool, and the default HDR
// bracket parameters it exercises the capture pipeline with.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete capturesimd configuration.
type Config struct {
	InstanceID       string       `yaml:"instance_id"`
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"`
	Sensor           SensorConfig `yaml:"sensor"`
	Pool             PoolConfig   `yaml:"pool"`
	HDR              HDRConfig    `yaml:"hdr"`
}

// SensorConfig sizes and paces the simulated device adapter.
type SensorConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// PoolConfig sizes the raw buffer pool.
type PoolConfig struct {
	Capacity int `yaml:"capacity"`
}

// HDRConfig holds the bracket parameters the demo binary submits once the
// session reaches ACTIVE.
type HDRConfig struct {
	NumImages      int    `yaml:"num_images"`
	BaseISO        int32  `yaml:"base_iso"`
	BaseExposureNs int64  `yaml:"base_exposure_ns"`
	AltISO         int32  `yaml:"alt_iso"`
	AltExposureNs  int64  `yaml:"alt_exposure_ns"`
	OutputDir      string `yaml:"output_dir"`
}

// Default returns the built-in configuration used when no -config flag is
// given, sized for a quick local run rather than any particular device.
func Default() *Config {
	cfg := &Config{
		InstanceID:       "capturesim-0",
		ShutdownTimeoutS: 5,
		Sensor: SensorConfig{
			Width:  1920,
			Height: 1080,
			FPS:    30,
		},
		Pool: PoolConfig{
			Capacity: 12,
		},
		HDR: HDRConfig{
			NumImages:      4,
			BaseISO:        100,
			BaseExposureNs: 20_000_000,
			AltISO:         800,
			AltExposureNs:  5_000_000,
			OutputDir:      "/tmp/capturecore-hdr",
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file, filling in any field the
// file omits from Default before validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
