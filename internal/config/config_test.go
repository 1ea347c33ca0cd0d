package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTimeouts(t *testing.T) {
	cfg := Default()
	if cfg.ActionTimeout != 5*time.Second {
		t.Fatalf("action timeout = %v, want 5s", cfg.ActionTimeout)
	}
	if cfg.RetryTimeout != 500*time.Millisecond {
		t.Fatalf("retry timeout = %v, want 500ms", cfg.RetryTimeout)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.yaml")
	contents := "verbose: true\nmax_count_fence: 64\nsys_id: 3\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Verbose {
		t.Fatal("expected verbose=true from yaml")
	}
	if cfg.MaxCountFence != 64 {
		t.Fatalf("max_count_fence = %d, want 64", cfg.MaxCountFence)
	}
	if cfg.SysID != 3 {
		t.Fatalf("sys_id = %d, want 3", cfg.SysID)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxCountRally != Default().MaxCountRally {
		t.Fatalf("max_count_rally = %d, want default %d", cfg.MaxCountRally, Default().MaxCountRally)
	}
}

func TestFlagOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mission.yaml")
	if err := os.WriteFile(path, []byte("device_id: from-yaml\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	deviceID := fs.String("device_id", "", "")
	if err := fs.Parse([]string{"-device_id=from-flag"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeviceID != "from-flag" {
		t.Fatalf("device_id = %q, want from-flag (flag value %q)", cfg.DeviceID, *deviceID)
	}
}
