// Package config loads firescore settings from defaults, an optional YAML file
// and FIRESCORE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/firescore/internal/infrastructure/db"
	httpapi "github.com/sawpanic/firescore/internal/interfaces/http"
	"github.com/sawpanic/firescore/internal/leaderboard"
	"github.com/sawpanic/firescore/internal/metric"
	"github.com/sawpanic/firescore/internal/submission"
)

// EnvPrefix prefixes every environment override, e.g. FIRESCORE_METRIC_PENALTY
const EnvPrefix = "FIRESCORE"

// DefaultPath is the config file looked up when --config is not given
const DefaultPath = "firescore.yaml"

// Config represents the complete application configuration
type Config struct {
	Logging     LoggingConfig        `yaml:"logging" envconfig:"LOGGING"`
	Metric      metric.Config        `yaml:"metric" envconfig:"METRIC"`
	Columns     metric.Columns       `yaml:"columns" envconfig:"COLUMNS"`
	Output      OutputConfig         `yaml:"output" envconfig:"OUTPUT"`
	Server      httpapi.ServerConfig `yaml:"server" envconfig:"SERVER"`
	Ledger      db.Config            `yaml:"ledger" envconfig:"LEDGER"`
	Leaderboard leaderboard.Config   `yaml:"leaderboard" envconfig:"LEADERBOARD"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`
}

// OutputConfig holds where generated files go
type OutputConfig struct {
	Path string `yaml:"path" envconfig:"PATH" validate:"required"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metric:      metric.DefaultConfig(),
		Columns:     metric.DefaultColumns(),
		Output:      OutputConfig{Path: submission.DefaultPath},
		Server:      httpapi.DefaultServerConfig(),
		Ledger:      db.DefaultConfig(),
		Leaderboard: leaderboard.DefaultConfig(),
	}
}

// Load builds the configuration. A missing file at path is an error only when
// required is set; an empty path skips the file entirely.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the validate struct tags of every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
