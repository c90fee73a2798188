// Package config loads the server configuration from a TOML file and
// applies defaults for everything left unset.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full server configuration.
type Config struct {
	// Listen is the HTTP bind address for the request surface.
	Listen string `toml:"listen"`

	// DataDir holds the persistent stores and the history database.
	DataDir string `toml:"data-dir"`

	Log  Log  `toml:"log"`
	Scan Scan `toml:"scan"`
}

// Log configures the structured logger.
type Log struct {
	// Level is debug|info|warn|error. Empty defers to LOG_LEVEL.
	Level string `toml:"level"`

	// Dir and File enable the ndjson sink when both are set.
	Dir  string `toml:"dir"`
	File string `toml:"file"`

	// MaxSizeMB rotates the sink file past this size.
	MaxSizeMB int `toml:"max-size-mb"`
}

// Scan holds the server-side scan option defaults. They apply when a
// request omits the corresponding option.
type Scan struct {
	BatchSize   int `toml:"batch-size"`
	TimeSliceMs int `toml:"time-slice-ms"`
	MaxEntries  int `toml:"max-entries"`
	MaxDepth    int `toml:"max-depth"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:  "127.0.0.1:7133",
		DataDir: "./data",
		Log: Log{
			File:      "app.ndjson",
			MaxSizeMB: 10,
		},
		Scan: Scan{
			BatchSize:   250,
			TimeSliceMs: 12,
			MaxDepth:    -1,
		},
	}
}

// Load reads path and merges it over the defaults. A missing file is
// not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if cfg.DataDir == "" {
		return errors.New("data-dir cannot be empty")
	}
	if cfg.Scan.BatchSize < 0 {
		return fmt.Errorf("scan batch-size cannot be negative, got %d", cfg.Scan.BatchSize)
	}
	if cfg.Scan.TimeSliceMs < 0 {
		return fmt.Errorf("scan time-slice-ms cannot be negative, got %d", cfg.Scan.TimeSliceMs)
	}
	return nil
}
