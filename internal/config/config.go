package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/panoforge/config.json"
	defaultParallel   = 2

	// DefaultOutputName is the filename used when no output path is given.
	DefaultOutputName = "panorama_output.jpg"
)

// Config holds user-editable settings for the pipeline.
type Config struct {
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	Stitcher   Stitcher   `json:"stitcher"`
}

// Processing captures execution preferences.
type Processing struct {
	ParallelJobs int    `json:"parallel_jobs"`
	TempDir      string `json:"temp_dir"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultInput  string `json:"default_input"`
	DefaultOutput string `json:"default_output"`
	DatabasePath  string `json:"database_path"`
}

// Stitcher selects the stitching engine and its rendering preferences.
type Stitcher struct {
	Preferred  string   `json:"preferred"` // "hugin", "imagemagick"
	Fallbacks  []string `json:"fallbacks"`
	Projection string   `json:"projection"` // cylindrical, spherical, planar
	Blending   string   `json:"blending"`   // multiband, feather, none
	Quality    string   `json:"quality"`    // fast, normal, high
	JPEGQual   int      `json:"jpeg_quality"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("PANOFORGE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Processing.ParallelJobs < 1 {
		return fmt.Errorf("processing.parallel_jobs must be at least 1, got %d", c.Processing.ParallelJobs)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	for _, name := range append([]string{c.Stitcher.Preferred}, c.Stitcher.Fallbacks...) {
		switch name {
		case "hugin", "imagemagick":
		default:
			return fmt.Errorf("unknown stitcher engine %q", name)
		}
	}
	if c.Stitcher.JPEGQual < 0 || c.Stitcher.JPEGQual > 100 {
		return fmt.Errorf("stitcher.jpeg_quality must be 0-100, got %d", c.Stitcher.JPEGQual)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Processing: Processing{
			ParallelJobs: defaultParallel,
			TempDir:      os.TempDir(),
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultInput:  ".",
			DefaultOutput: DefaultOutputName,
			DatabasePath:  filepath.Join(os.TempDir(), "panoforge.db"),
		},
		Stitcher: Stitcher{
			Preferred:  "hugin",
			Fallbacks:  []string{"imagemagick"},
			Projection: "cylindrical",
			Blending:   "multiband",
			Quality:    "normal",
			JPEGQual:   92,
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
