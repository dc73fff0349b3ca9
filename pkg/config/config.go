// Package config provides configuration loading and management for mvprep.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mvprep/internal/errdefs"
)

// Oracle backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// ReduceFactor is the integer downscale applied before optical flow
		ReduceFactor int `yaml:"reduceFactor"`

		// Shrink is the margin added around each predicted box, as a fraction of its extent
		Shrink float64 `yaml:"shrink"`

		// CopyOrg saves the masked originals next to the raw masks
		CopyOrg bool `yaml:"copyOrg"`

		// AdjustCameras runs normalization, carving and re-cropping after propagation
		AdjustCameras bool `yaml:"adjustCameras"`

		// Workers bounds concurrent per-frame work
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Scene carving parameters
	Carving struct {
		// Resolution is the voxel count along each axis
		Resolution int `yaml:"resolution"`

		// Extent is the half size of the carved cube
		Extent float64 `yaml:"extent"`
	} `yaml:"carving"`

	// Model oracle parameters
	Oracle struct {
		// Backend is "local" or "remote"
		Backend string `yaml:"backend"`

		// URL is the base URL of the remote model server
		URL string `yaml:"url"`

		// TimeoutSeconds bounds each remote call
		TimeoutSeconds int `yaml:"timeoutSeconds"`

		// FlowBlockSize and FlowSearchRadius tune the local flow estimator
		FlowBlockSize    int `yaml:"flowBlockSize"`
		FlowSearchRadius int `yaml:"flowSearchRadius"`
	} `yaml:"oracle"`

	// Output parameters
	Output struct {
		// MaskDir receives raw and final masks
		MaskDir string `yaml:"maskDir"`

		// MaskedImageDir receives masked and cropped images
		MaskedImageDir string `yaml:"maskedImageDir"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results go
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.ReduceFactor = 2
	cfg.Processing.Shrink = 0.02
	cfg.Processing.CopyOrg = true
	cfg.Processing.AdjustCameras = true
	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Carving.Resolution = 64
	cfg.Carving.Extent = 1.0

	cfg.Oracle.Backend = BackendLocal
	cfg.Oracle.URL = "http://localhost:8000"
	cfg.Oracle.TimeoutSeconds = 120
	cfg.Oracle.FlowBlockSize = 8
	cfg.Oracle.FlowSearchRadius = 4

	cfg.Output.MaskDir = "masks"
	cfg.Output.MaskedImageDir = "masked_images"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary"
	cfg.Output.Verbose = false

	return cfg
}

// Timeout returns the remote call timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Processing.ReduceFactor < 1:
		return errdefs.InvalidArgument("processing.reduceFactor must be at least 1, got %d", c.Processing.ReduceFactor)
	case c.Processing.Shrink < 0:
		return errdefs.InvalidArgument("processing.shrink must be non-negative, got %g", c.Processing.Shrink)
	case c.Processing.Workers < 1:
		return errdefs.InvalidArgument("processing.workers must be at least 1, got %d", c.Processing.Workers)
	case c.Carving.Resolution < 1:
		return errdefs.InvalidArgument("carving.resolution must be at least 1, got %d", c.Carving.Resolution)
	case c.Carving.Extent <= 0:
		return errdefs.InvalidArgument("carving.extent must be positive, got %g", c.Carving.Extent)
	case c.Oracle.Backend != BackendLocal && c.Oracle.Backend != BackendRemote:
		return errdefs.InvalidArgument("oracle.backend must be %q or %q, got %q", BackendLocal, BackendRemote, c.Oracle.Backend)
	case c.Oracle.Backend == BackendRemote && c.Oracle.URL == "":
		return errdefs.InvalidArgument("oracle.url is required for the remote backend")
	case c.Oracle.TimeoutSeconds < 1:
		return errdefs.InvalidArgument("oracle.timeoutSeconds must be at least 1, got %d", c.Oracle.TimeoutSeconds)
	case c.Oracle.FlowBlockSize < 1 || c.Oracle.FlowSearchRadius < 0:
		return errdefs.InvalidArgument("invalid local flow settings %d/%d", c.Oracle.FlowBlockSize, c.Oracle.FlowSearchRadius)
	case c.Output.MaskDir == "" || c.Output.MaskedImageDir == "":
		return errdefs.InvalidArgument("output.maskDir and output.maskedImageDir are required")
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
