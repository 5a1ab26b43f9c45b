// Package config provides configuration loading and management for
// merfishdecode. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"merfishdecode/internal/logger"
	"merfishdecode/pkg/codebook"
	"merfishdecode/pkg/errs"
	"merfishdecode/pkg/labeling"
	"merfishdecode/pkg/pixeldecoder"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Decoding parameters
	Decode struct {
		// Metric names the pixel-to-codeword distance
		Metric string `yaml:"metric"`

		// NormOrder is n of the L-n norm used to normalize pixel vectors
		NormOrder int `yaml:"normOrder"`

		// DistanceThreshold is the largest accepted distance to a codeword
		DistanceThreshold float64 `yaml:"distanceThreshold"`

		// MagnitudeThreshold is the noise floor on pixel magnitudes
		MagnitudeThreshold float64 `yaml:"magnitudeThreshold"`

		// MinArea and MaxArea bound the area of retained spots; MaxArea
		// accepts .inf
		MinArea int     `yaml:"minArea"`
		MaxArea float64 `yaml:"maxArea"`

		// Connectivity is 4 or 8 for per-plane labeling, 6, 18 or 26 for volumes
		Connectivity int `yaml:"connectivity"`

		// NormalizeCodewords compares against unit-norm codewords
		NormalizeCodewords bool `yaml:"normalizeCodewords"`

		// MeasureTraces computes the mean pixel trace of every spot
		MeasureTraces bool `yaml:"measureTraces"`
	} `yaml:"decode"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// TileRows is the height of the row bands pixels are processed in
		TileRows int `yaml:"tileRows"`

		// ScaleFactors, indexed [round][channel], divide the image before
		// decoding; empty leaves the image unscaled
		ScaleFactors [][]float64 `yaml:"scaleFactors,omitempty"`
	} `yaml:"processing"`

	// Input parameters
	Input struct {
		// Codebook is the path of a YAML or JSON codebook document. When
		// empty, a synthetic experiment is generated.
		Codebook string `yaml:"codebook"`

		// Synthetic describes the generated experiment
		Synthetic struct {
			Rounds     int     `yaml:"rounds"`
			Channels   int     `yaml:"channels"`
			OnBits     int     `yaml:"onBits"`
			Codewords  int     `yaml:"codewords"`
			Blanks     int     `yaml:"blanks"`
			Z          int     `yaml:"z"`
			Y          int     `yaml:"y"`
			X          int     `yaml:"x"`
			Spots      int     `yaml:"spots"`
			SpotSize   int     `yaml:"spotSize"`
			Brightness float64 `yaml:"brightness"`
			Noise      float64 `yaml:"noise"`
			Seed       uint64  `yaml:"seed"`
		} `yaml:"synthetic"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// SaveDiagnostics writes label and pass-mask images next to the spot table
		SaveDiagnostics bool `yaml:"saveDiagnostics"`

		// OutputDir is the directory results are written to
		OutputDir string `yaml:"outputDir"`

		// Verbose lowers the log level to debug
		Verbose bool `yaml:"verbose"`

		// LogLevel is one of debug, info, error
		LogLevel string `yaml:"logLevel"`

		// MetricsFile, when set, receives the run metrics in Prometheus text format
		MetricsFile string `yaml:"metricsFile"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults := pixeldecoder.DefaultParams()

	// Set default decoding parameters
	cfg.Decode.Metric = codebook.Euclidean
	cfg.Decode.NormOrder = defaults.NormOrder
	cfg.Decode.DistanceThreshold = defaults.DistanceThreshold
	cfg.Decode.MagnitudeThreshold = defaults.MagnitudeThreshold
	cfg.Decode.MinArea = defaults.MinArea
	cfg.Decode.MaxArea = defaults.MaxArea
	cfg.Decode.Connectivity = int(defaults.Connectivity)
	cfg.Decode.NormalizeCodewords = defaults.NormalizeCodewords
	cfg.Decode.MeasureTraces = defaults.MeasureTraces

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.TileRows = 64

	// Set default synthetic experiment
	syn := &cfg.Input.Synthetic
	syn.Rounds = 8
	syn.Channels = 2
	syn.OnBits = 4
	syn.Codewords = 140
	syn.Blanks = 10
	syn.Z = 1
	syn.Y = 512
	syn.X = 512
	syn.Spots = 400
	syn.SpotSize = 3
	syn.Brightness = 1
	syn.Noise = 0.01
	syn.Seed = 1

	// Set default output parameters
	cfg.Output.SaveDiagnostics = false
	cfg.Output.OutputDir = "output"
	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
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

// LogLevel resolves the configured log level; Verbose forces debug.
func (c *Config) LogLevel() (logger.LogLevel, error) {
	if c.Output.Verbose {
		return logger.LogDebug, nil
	}
	level, err := logger.ParseLogLevel(c.Output.LogLevel)
	if err != nil {
		return level, errs.Configurationf("invalid log level %q", c.Output.LogLevel)
	}
	return level, nil
}

// DecodeParams converts the decode and processing sections into pipeline
// parameters. The result carries no logger or metrics collector.
func (c *Config) DecodeParams() (pixeldecoder.Params, error) {
	p := pixeldecoder.DefaultParams()

	metric, err := codebook.LookupMetric(c.Decode.Metric)
	if err != nil {
		return p, err
	}
	connectivity, err := labeling.ParseConnectivity(c.Decode.Connectivity)
	if err != nil {
		return p, err
	}

	p.Metric = metric
	p.NormOrder = c.Decode.NormOrder
	p.DistanceThreshold = c.Decode.DistanceThreshold
	p.MagnitudeThreshold = c.Decode.MagnitudeThreshold
	p.NormalizeCodewords = c.Decode.NormalizeCodewords
	p.MinArea = c.Decode.MinArea
	p.MaxArea = c.Decode.MaxArea
	p.Connectivity = connectivity
	p.MeasureTraces = c.Decode.MeasureTraces
	p.NumWorkers = c.Processing.NumCores
	p.TileRows = c.Processing.TileRows

	return p, p.Validate()
}

// Validate checks every section that the decode run depends on.
func (c *Config) Validate() error {
	if _, err := c.DecodeParams(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Input.Codebook == "" {
		syn := c.Input.Synthetic
		if syn.Z < 1 || syn.Y < 1 || syn.X < 1 {
			return errs.Configurationf("synthetic image needs a positive size, got %dx%dx%d", syn.Z, syn.Y, syn.X)
		}
		if syn.Spots < 0 || syn.SpotSize < 1 {
			return errs.Configurationf("synthetic spots need a positive size, got %d spots of size %d", syn.Spots, syn.SpotSize)
		}
	}
	return nil
}
