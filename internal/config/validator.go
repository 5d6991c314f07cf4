package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// applyDefaults fills in zero-valued fields a caller left unset, the same
// way Validate does for the teacher's stream buffer size.
func applyDefaults(cfg *Config) {
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.Sensor.Width <= 0 {
		cfg.Sensor.Width = 1920
	}
	if cfg.Sensor.Height <= 0 {
		cfg.Sensor.Height = 1080
	}
	if cfg.Sensor.FPS <= 0 {
		cfg.Sensor.FPS = 30
	}
	if cfg.Pool.Capacity <= 0 {
		cfg.Pool.Capacity = 12
	}
	if cfg.HDR.NumImages <= 0 {
		cfg.HDR.NumImages = 4
	}
	if cfg.HDR.OutputDir == "" {
		cfg.HDR.OutputDir = "/tmp/capturecore-hdr"
	}
}

// Validate checks a loaded configuration for values that would otherwise
// only fail once the capture session is already running.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Sensor.Width <= 0 || cfg.Sensor.Height <= 0 {
		return fmt.Errorf("sensor.width and sensor.height must be > 0")
	}
	if cfg.Sensor.FPS <= 0 {
		return fmt.Errorf("sensor.fps must be > 0")
	}

	if cfg.Pool.Capacity < cfg.HDR.NumImages+1 {
		return fmt.Errorf("pool.capacity (%d) must be at least hdr.num_images+1 (%d)",
			cfg.Pool.Capacity, cfg.HDR.NumImages+1)
	}

	return nil
}
