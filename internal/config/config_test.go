package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() failed validation: %v", err)
	}
}

func TestValidateRejectsBadInstanceID(t *testing.T) {
	cfg := Default()
	cfg.InstanceID = "Not Valid!"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an invalid instance_id")
	}
}

func TestValidateRejectsUndersizedPool(t *testing.T) {
	cfg := Default()
	cfg.HDR.NumImages = 8
	cfg.Pool.Capacity = 2
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when pool capacity can't hold one full hdr bracket")
	}
}

func TestLoadFillsDefaultsAndOverridesGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capturesim.yaml")

	yamlBody := "instance_id: bench-0\nsensor:\n  width: 640\n  height: 480\n  fps: 15\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned an error: %v", err)
	}

	if cfg.InstanceID != "bench-0" {
		t.Fatalf("instance_id = %q, want bench-0", cfg.InstanceID)
	}
	if cfg.Sensor.Width != 640 || cfg.Sensor.Height != 480 || cfg.Sensor.FPS != 15 {
		t.Fatalf("sensor config not applied from file: %+v", cfg.Sensor)
	}
	if cfg.Pool.Capacity != 12 {
		t.Fatalf("pool.capacity default = %d, want 12", cfg.Pool.Capacity)
	}
	if cfg.HDR.NumImages != 4 || cfg.HDR.OutputDir == "" {
		t.Fatalf("hdr defaults not applied: %+v", cfg.HDR)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
