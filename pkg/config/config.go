// Package config provides configuration loading and management for umbilicus.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"umbilicus/internal/models"
	"umbilicus/pkg/volume"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds.
const (
	SourceRaw       = "raw"
	SourceStack     = "stack"
	SourceSynthetic = "synthetic"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Collection parameters
	Collection struct {
		// Step is the distance between visited slices
		Step int `yaml:"step"`

		// Workers is the number of background prefetch workers
		Workers int `yaml:"workers"`

		// ZPos is the traversal axis (0, 1 or 2)
		ZPos int `yaml:"zpos"`

		// SerializeFetches forbids overlapping volume reads, for sources
		// that cannot be read concurrently
		SerializeFetches bool `yaml:"serializeFetches"`

		// Window restricts each slice to a sub-rectangle
		Window models.Window `yaml:"window"`
	} `yaml:"collection"`

	// Volume source parameters
	Source struct {
		// Kind is one of raw, stack or synthetic
		Kind string `yaml:"kind"`

		// Path is the raw file or the image stack directory
		Path string `yaml:"path"`

		// Shape is the volume extent; required for raw and synthetic sources
		Shape []int `yaml:"shape,flow"`

		// DType is the raw sample type
		DType string `yaml:"dtype"`

		// LatencyMs adds an artificial delay to every slice read
		LatencyMs int `yaml:"latencyMs"`
	} `yaml:"source"`

	// Output parameters
	Output struct {
		// Dir is where point files are written
		Dir string `yaml:"dir"`

		// Name overrides the scroll-derived output name
		Name string `yaml:"name"`

		// Formats lists the point file formats to write
		Formats []string `yaml:"formats,flow"`

		// Preview is the JPEG file the current slice is written to
		Preview string `yaml:"preview"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Scroll identifies the scan; it names the output file
	Scroll struct {
		ID         string  `yaml:"id"`
		AB         string  `yaml:"ab"`
		Energy     int     `yaml:"energy"`
		Resolution float64 `yaml:"resolution"`
	} `yaml:"scroll"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Collection.Step = 500
	cfg.Collection.Workers = 2
	cfg.Collection.ZPos = 0

	cfg.Source.Kind = SourceSynthetic
	cfg.Source.Shape = []int{1001, 96, 96}
	cfg.Source.DType = "uint16"

	cfg.Output.Dir = "."
	cfg.Output.Formats = []string{"json"}
	cfg.Output.Preview = "slice_preview.jpg"

	cfg.Scroll.ID = "1"
	cfg.Scroll.Energy = 54
	cfg.Scroll.Resolution = 7.91

	return cfg
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
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := atomic.WriteFile(configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Name returns the label used for output files: Output.Name when set,
// otherwise the scroll name.
func (c *Config) Name() string {
	if c.Output.Name != "" {
		return c.Output.Name
	}
	if c.Scroll.ID == "" {
		return ""
	}
	return models.ScrollName(c.Scroll.ID, c.Scroll.AB, c.Scroll.Energy, c.Scroll.Resolution)
}

// VolumeShape returns Source.Shape as a models.Shape.
func (c *Config) VolumeShape() (models.Shape, error) {
	var s models.Shape
	if len(c.Source.Shape) != 3 {
		return s, fmt.Errorf("%w: shape needs 3 dimensions, got %d", ErrInvalid, len(c.Source.Shape))
	}
	copy(s[:], c.Source.Shape)
	if !s.Valid() {
		return s, fmt.Errorf("%w: shape %v has an empty axis", ErrInvalid, c.Source.Shape)
	}
	return s, nil
}

// Validate checks the values that cannot be verified against the volume.
// Window bounds are checked once the volume shape is known.
func (c *Config) Validate() error {
	col := c.Collection
	if col.Step <= 0 {
		return fmt.Errorf("%w: step must be positive, got %d", ErrInvalid, col.Step)
	}
	if col.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, col.Workers)
	}
	if col.ZPos < 0 || col.ZPos > 2 {
		return fmt.Errorf("%w: zpos must be 0, 1 or 2, got %d", ErrInvalid, col.ZPos)
	}
	w := col.Window
	if w.StartX < 0 || w.StartY < 0 || w.EndX < 0 || w.EndY < 0 {
		return fmt.Errorf("%w: window coordinates must not be negative", ErrInvalid)
	}
	if c.Source.LatencyMs < 0 {
		return fmt.Errorf("%w: latencyMs must not be negative", ErrInvalid)
	}

	switch strings.ToLower(c.Source.Kind) {
	case SourceRaw:
		if c.Source.Path == "" {
			return fmt.Errorf("%w: raw source needs a path", ErrInvalid)
		}
		if _, err := c.VolumeShape(); err != nil {
			return err
		}
		if volume.DType(strings.ToLower(c.Source.DType)).Size() == 0 {
			return fmt.Errorf("%w: unknown dtype %q", ErrInvalid, c.Source.DType)
		}
	case SourceStack:
		if c.Source.Path == "" {
			return fmt.Errorf("%w: stack source needs a directory", ErrInvalid)
		}
	case SourceSynthetic:
		if _, err := c.VolumeShape(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalid, c.Source.Kind)
	}
	return nil
}
