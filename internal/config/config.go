// Package config provides the JSON settings file shared by the spotarray tools.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spotarray/internal/blob"
	"spotarray/internal/calibration"
	"spotarray/internal/fit"
)

const (
	configDir  = "spotarray"
	configFile = "config.json"

	// CurrentVersion is written to new config files.
	CurrentVersion = 1
)

// ErrBadOverride is returned for a command-line override that is not key=value.
var ErrBadOverride = errors.New("config: override must be key=value")

// Config holds the settings of every tool.
type Config struct {
	Version int `json:"version"`

	Array       calibration.Size    `json:"array"`
	Calibration CalibrationSettings `json:"calibration"`

	// Spots configures blob detection on camera frames; Peaks configures it
	// on the Fourier magnitude during lattice estimation.
	Spots  blob.Params `json:"spots"`
	Peaks  blob.Params `json:"peaks"`
	Filter string      `json:"filter,omitempty"`

	Fit FitSettings `json:"fit"`

	path string
}

// CalibrationSettings mirrors the tunable parts of calibration.Options.
type CalibrationSettings struct {
	OrientationCheck bool   `json:"orientation_check"`
	HonePasses       int    `json:"hone_passes"`
	Outliers         string `json:"outliers"`
	RefineAffine     bool   `json:"refine_affine"`
}

// FitSettings mirrors fit.Options.
type FitSettings struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// Default returns the built-in settings.
func Default() *Config {
	cal := calibration.DefaultOptions()
	fo := fit.DefaultOptions()
	return &Config{
		Version: CurrentVersion,
		Array:   calibration.SquareSize(10),
		Calibration: CalibrationSettings{
			OrientationCheck: cal.OrientationCheck,
			HonePasses:       cal.HonePasses,
			Outliers:         cal.Outliers.String(),
			RefineAffine:     cal.RefineAffine,
		},
		Spots: blob.DefaultParams(),
		Peaks: cal.PeakParams,
		Fit: FitSettings{
			MaxIterations: fo.MaxIterations,
			Tolerance:     fo.Tolerance,
		},
	}
}

// DefaultPath returns ~/.config/spotarray/config.json (or the platform equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, configDir, configFile)
}

// Load reads settings from path, or from DefaultPath when path is empty.
// A missing file yields the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	c := Default()
	c.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the config to the file it was loaded from, or to path if given.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		path = DefaultPath()
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	c.path = path
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Array.Nx < 1 || c.Array.Ny < 1 {
		return fmt.Errorf("%w: array %s", calibration.ErrBadSize, c.Array)
	}
	if c.Calibration.HonePasses < 0 {
		return fmt.Errorf("hone_passes must not be negative, got %d", c.Calibration.HonePasses)
	}
	if _, err := calibration.ParseOutlierPolicy(c.Calibration.Outliers); err != nil {
		return err
	}
	if _, err := blob.ParseFilter(c.Filter); err != nil {
		return err
	}
	if err := c.Spots.Validate(); err != nil {
		return fmt.Errorf("spots: %w", err)
	}
	if err := c.Peaks.Validate(); err != nil {
		return fmt.Errorf("peaks: %w", err)
	}
	if c.Fit.MaxIterations < 1 {
		return fmt.Errorf("fit max_iterations must be positive, got %d", c.Fit.MaxIterations)
	}
	return nil
}

// CalibrationOptions builds calibration options from the config.
func (c *Config) CalibrationOptions() (calibration.Options, error) {
	policy, err := calibration.ParseOutlierPolicy(c.Calibration.Outliers)
	if err != nil {
		return calibration.Options{}, err
	}
	opts := calibration.DefaultOptions()
	opts.OrientationCheck = c.Calibration.OrientationCheck
	opts.HonePasses = c.Calibration.HonePasses
	opts.Outliers = policy
	opts.RefineAffine = c.Calibration.RefineAffine
	opts.PeakParams = c.Peaks
	return opts, nil
}

// FitOptions builds fit options from the config.
func (c *Config) FitOptions() fit.Options {
	opts := fit.DefaultOptions()
	opts.MaxIterations = c.Fit.MaxIterations
	opts.Tolerance = c.Fit.Tolerance
	return opts
}

// BlobFilter returns the configured spot filter.
func (c *Config) BlobFilter() (blob.Filter, error) {
	return blob.ParseFilter(c.Filter)
}

// ApplyOverrides applies key=value pairs to the detector parameters. Keys
// name OpenCV SimpleBlobDetector fields and address the spot detector;
// a "peaks." prefix addresses the Fourier peak detector instead.
func (c *Config) ApplyOverrides(pairs []string) error {
	spots := make(map[string]any)
	peaks := make(map[string]any)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("%w: %q", ErrBadOverride, pair)
		}
		value = strings.TrimSpace(value)
		if name, ok := strings.CutPrefix(key, "peaks."); ok {
			peaks[name] = value
		} else {
			spots[key] = value
		}
	}

	sp, err := c.Spots.WithOverrides(spots)
	if err != nil {
		return fmt.Errorf("spots: %w", err)
	}
	pk, err := c.Peaks.WithOverrides(peaks)
	if err != nil {
		return fmt.Errorf("peaks: %w", err)
	}
	c.Spots, c.Peaks = sp, pk
	return nil
}

// Overrides collects repeated -set key=value command-line flags.
type Overrides []string

func (o *Overrides) String() string {
	return strings.Join(*o, ",")
}

// Set appends one pair; it implements flag.Value.
func (o *Overrides) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("%w: %q", ErrBadOverride, v)
	}
	*o = append(*o, v)
	return nil
}
