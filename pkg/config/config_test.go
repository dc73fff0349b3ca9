package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"mvprep/internal/errdefs"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := DefaultConfig()
	want.Processing.ReduceFactor = 4
	want.Oracle.Backend = BackendRemote
	want.Oracle.URL = "http://models:9000"
	want.Output.Verbose = true

	if err := SaveConfig(want, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "carving:\n  resolution: 32\noracle:\n  backend: remote\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Carving.Resolution != 32 || cfg.Oracle.Backend != BackendRemote {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Processing.ReduceFactor != 2 || cfg.Carving.Extent != 1.0 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Timeout() != 120*time.Second {
		t.Errorf("expected 120s timeout, got %v", cfg.Timeout())
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("processing: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"reduce factor", func(c *Config) { c.Processing.ReduceFactor = 0 }},
		{"shrink", func(c *Config) { c.Processing.Shrink = -1 }},
		{"workers", func(c *Config) { c.Processing.Workers = 0 }},
		{"resolution", func(c *Config) { c.Carving.Resolution = 0 }},
		{"extent", func(c *Config) { c.Carving.Extent = 0 }},
		{"backend", func(c *Config) { c.Oracle.Backend = "gpu" }},
		{"remote url", func(c *Config) { c.Oracle.Backend = BackendRemote; c.Oracle.URL = "" }},
		{"timeout", func(c *Config) { c.Oracle.TimeoutSeconds = 0 }},
		{"flow", func(c *Config) { c.Oracle.FlowBlockSize = 0 }},
		{"mask dir", func(c *Config) { c.Output.MaskDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errdefs.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mvprep.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
