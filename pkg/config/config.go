// Package config provides configuration loading and management for mripatches.
// It handles loading configuration from YAML files, provides default values
// and validates every option once before any stage runs.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mripatches/internal/models"
	"mripatches/pkg/errors"
	"mripatches/pkg/volume"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Dataset parameters
	Dataset struct {
		// Path is the dataset root; volume filenames are relative to it
		Path string `yaml:"path"`

		// Ratio holds the training and testing shares of the volume list.
		// Any remainder is left unused.
		Ratio []float64 `yaml:"ratio"`

		// Seed makes the split permutation reproducible. Unset means a fresh
		// permutation on every run.
		Seed *uint64 `yaml:"seed,omitempty"`

		// LabelMarker identifies label volumes during discovery
		LabelMarker string `yaml:"labelMarker"`
	} `yaml:"dataset"`

	// Patch geometry
	Patch struct {
		// Size is [width, height] in pixels
		Size []int `yaml:"size"`

		// Pixdim maps an orientation (axial, sagittal, frontal) to its
		// physical pixel spacing
		Pixdim map[string][]float64 `yaml:"pixdim"`
	} `yaml:"patch"`

	// Placement of volumes stored as slice stacks
	Volume struct {
		// PixelSpacing is the in-plane spacing [x, y] in mm
		PixelSpacing []float64 `yaml:"pixelSpacing"`

		// SliceGap is the distance between consecutive slices in mm
		SliceGap float64 `yaml:"sliceGap"`
	} `yaml:"volume"`

	// Extraction parameters
	Extraction struct {
		// RatioPatchesVoxels is the share of reference voxels used as anchors
		RatioPatchesVoxels float64 `yaml:"ratioPatchesVoxels"`

		// BatchSize is the minibatch size used while labelling patches
		BatchSize int `yaml:"batchSize"`

		// ExtractAllPositive and ExtractAllNegative are reserved; enabling
		// either is rejected by Validate
		ExtractAllPositive bool `yaml:"extractAllPositive"`
		ExtractAllNegative bool `yaml:"extractAllNegative"`

		// PreviewCount is the number of patches per volume saved as images
		PreviewCount int `yaml:"previewCount"`
	} `yaml:"extraction"`

	// Training stream parameters
	Training struct {
		// RatioPatchPerImage is the share of indexed patches kept per volume
		RatioPatchPerImage float64 `yaml:"ratioPatchPerImage"`

		// BatchSize is the minibatch size fed to the learner
		BatchSize int `yaml:"batchSize"`

		// Feature names the extractor applied to every raw patch
		Feature string `yaml:"feature"`

		// Normalization is "none" or "percentile"
		Normalization string `yaml:"normalization"`

		// NormalizationRange is [offset, scale] of the percentile rescale
		NormalizationRange []float64 `yaml:"normalizationRange"`
	} `yaml:"training"`

	// Output parameters
	Output struct {
		// Dir receives datasets.json, patches.json, previews and plots
		Dir string `yaml:"dir"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"logLevel"`

		// Console switches logging to human readable output
		Console bool `yaml:"console"`

		// Plot enables the class distribution chart
		Plot bool `yaml:"plot"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.Ratio = []float64{0.6, 0.2}
	cfg.Dataset.LabelMarker = "seg"

	cfg.Patch.Size = []int{32, 32}
	cfg.Patch.Pixdim = map[string][]float64{"axial": {1.0, 1.0}}

	cfg.Volume.PixelSpacing = []float64{1.0, 1.0}
	cfg.Volume.SliceGap = 1.0

	cfg.Extraction.RatioPatchesVoxels = 0.1
	cfg.Extraction.BatchSize = 1

	cfg.Training.RatioPatchPerImage = 1.0
	cfg.Training.BatchSize = 500
	cfg.Training.Feature = "raw"
	cfg.Training.Normalization = "none"
	cfg.Training.NormalizationRange = []float64{0, 255}

	cfg.Output.Dir = "."
	cfg.Output.LogLevel = "info"
	cfg.Output.Console = true

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
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Maps merge into the defaults, so the default pixdim is cleared first
	// when the file declares its own.
	var explicit struct {
		Patch struct {
			Pixdim map[string][]float64 `yaml:"pixdim"`
		} `yaml:"patch"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	if explicit.Patch.Pixdim != nil {
		cfg.Patch.Pixdim = nil
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every option and returns the immutable patch geometry.
func (c *Config) Validate() (models.PatchSpec, error) {
	if len(c.Dataset.Ratio) != 2 {
		return models.PatchSpec{}, errors.NewConfigError("dataset.ratio", "expected [training, testing]")
	}
	for _, r := range c.Dataset.Ratio {
		if err := errors.CheckRatio("dataset.ratio", r); err != nil {
			return models.PatchSpec{}, err
		}
	}
	if c.Dataset.Ratio[0]+c.Dataset.Ratio[1] > 1 {
		return models.PatchSpec{}, errors.NewRangeError("dataset.ratio", c.Dataset.Ratio, "training and testing shares exceed 1")
	}
	if c.Dataset.LabelMarker == "" {
		return models.PatchSpec{}, errors.NewConfigError("dataset.labelMarker", "must not be empty")
	}

	if len(c.Volume.PixelSpacing) != 2 {
		return models.PatchSpec{}, errors.NewConfigError("volume.pixelSpacing", "expected [x, y]")
	}
	if c.Volume.PixelSpacing[0] <= 0 || c.Volume.PixelSpacing[1] <= 0 {
		return models.PatchSpec{}, errors.NewRangeError("volume.pixelSpacing", c.Volume.PixelSpacing, "must be positive")
	}
	if c.Volume.SliceGap <= 0 {
		return models.PatchSpec{}, errors.NewRangeError("volume.sliceGap", c.Volume.SliceGap, "must be positive")
	}

	if err := errors.CheckRatio("extraction.ratioPatchesVoxels", c.Extraction.RatioPatchesVoxels); err != nil {
		return models.PatchSpec{}, err
	}
	if c.Extraction.BatchSize <= 0 {
		return models.PatchSpec{}, errors.NewRangeError("extraction.batchSize", c.Extraction.BatchSize, "must be positive")
	}
	if c.Extraction.ExtractAllPositive {
		return models.PatchSpec{}, errors.NewConfigError("extraction.extractAllPositive", "not supported")
	}
	if c.Extraction.ExtractAllNegative {
		return models.PatchSpec{}, errors.NewConfigError("extraction.extractAllNegative", "not supported")
	}
	if c.Extraction.PreviewCount < 0 {
		return models.PatchSpec{}, errors.NewRangeError("extraction.previewCount", c.Extraction.PreviewCount, "must not be negative")
	}

	if err := errors.CheckRatio("training.ratioPatchPerImage", c.Training.RatioPatchPerImage); err != nil {
		return models.PatchSpec{}, err
	}
	if c.Training.BatchSize <= 0 {
		return models.PatchSpec{}, errors.NewRangeError("training.batchSize", c.Training.BatchSize, "must be positive")
	}
	switch c.Training.Normalization {
	case "none", "percentile":
	default:
		return models.PatchSpec{}, errors.NewConfigError("training.normalization", "unknown normalization '"+c.Training.Normalization+"'")
	}
	if len(c.Training.NormalizationRange) != 2 {
		return models.PatchSpec{}, errors.NewConfigError("training.normalizationRange", "expected [offset, scale]")
	}

	return c.PatchSpec()
}

// PatchSpec converts the patch section into a validated models.PatchSpec.
func (c *Config) PatchSpec() (models.PatchSpec, error) {
	if len(c.Patch.Size) != 2 {
		return models.PatchSpec{}, errors.NewConfigError("patch.size", "expected [width, height]")
	}
	pixdim := make(map[string][2]float64, len(c.Patch.Pixdim))
	for name, spacing := range c.Patch.Pixdim {
		if len(spacing) != 2 {
			return models.PatchSpec{}, errors.NewConfigError("patch.pixdim."+name, "expected two spacings")
		}
		pixdim[name] = [2]float64{spacing[0], spacing[1]}
	}
	return models.NewPatchSpec([2]int{c.Patch.Size[0], c.Patch.Size[1]}, pixdim)
}

// Opener returns the file opener configured by the volume section.
func (c *Config) Opener() volume.FileOpener {
	opts := volume.SliceStackOptions{SliceGap: c.Volume.SliceGap}
	if len(c.Volume.PixelSpacing) == 2 {
		opts.PixelSpacing = [2]float64{c.Volume.PixelSpacing[0], c.Volume.PixelSpacing[1]}
	}
	return volume.FileOpener{SliceStack: opts}
}
