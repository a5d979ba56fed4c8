// Package config provides configuration loading and validation for the CLI
// and the worker service.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from a JSON file, the
// environment, or CLI flags; missing values fall back to defaults.
type Config struct {
	// Gateway
	APIKey     string `json:"api_key,omitempty" validate:"omitempty,min=1"`
	Model      string `json:"model,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty" validate:"gte=0"`
	Retries    int    `json:"retries,omitempty" validate:"gte=0"`

	// Batching
	MaxPages int `json:"max_pages,omitempty" validate:"gte=0"`
	MaxChars int `json:"max_chars,omitempty" validate:"gte=0"`

	// Orchestration
	MaxParallel int `json:"max_parallel,omitempty" validate:"gte=0"`

	// Consolidation
	MinConfidence float64 `json:"min_confidence,omitempty" validate:"gte=0,lte=1"`
	HeaderY       float64 `json:"header_y,omitempty" validate:"gte=0"`

	// Persistence and transport
	DatabaseURL     string `json:"database_url,omitempty"`
	PollIntervalSec int    `json:"poll_interval_sec,omitempty" validate:"gte=0"`

	// Behavior
	PipelineFile string `json:"pipeline_file,omitempty"`
	LogLevel     string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat    string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Model:           "gemini-2.0-flash",
		TimeoutSec:      60,
		Retries:         2,
		MaxPages:        4,
		MaxChars:        12000,
		MaxParallel:     4,
		MinConfidence:   0.60,
		HeaderY:         120,
		PollIntervalSec: 2,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads configuration from a JSON file. An empty path returns defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads a .env file into the process environment when one
// exists. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("DOCROUTER_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DOCROUTER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DOCROUTER_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("DOCROUTER_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
}

// Validate checks numeric ranges and enum fields.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: field %s failed %s validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from
// defaults. Used to layer the config file over the built-ins.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.PipelineFile == "" {
		result.PipelineFile = defaults.PipelineFile
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}

	if result.TimeoutSec == 0 {
		result.TimeoutSec = defaults.TimeoutSec
	}
	if result.Retries == 0 {
		result.Retries = defaults.Retries
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.MaxChars == 0 {
		result.MaxChars = defaults.MaxChars
	}
	if result.MaxParallel == 0 {
		result.MaxParallel = defaults.MaxParallel
	}
	if result.PollIntervalSec == 0 {
		result.PollIntervalSec = defaults.PollIntervalSec
	}

	if result.MinConfidence == 0 {
		result.MinConfidence = defaults.MinConfidence
	}
	if result.HeaderY == 0 {
		result.HeaderY = defaults.HeaderY
	}

	return result
}
