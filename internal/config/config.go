// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for parley.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.parley/config.toml
//   - ~/.parley/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	// DefaultModel is used for rooms with no model selected
	DefaultModel string `toml:"default_model" json:"default_model"`

	Backend BackendConfig `toml:"backend" json:"backend"`
	Retry   RetryConfig   `toml:"retry" json:"retry"`
	Anim    AnimConfig    `toml:"animation" json:"animation"`
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// BackendConfig configures the completion backend client.
type BackendConfig struct {
	// URL is the backend base URL
	URL string `toml:"url" json:"url"`

	// TimeoutSeconds bounds one completion request
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`

	// RequestsPerSecond throttles outgoing completion calls
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`

	// TokenBudget bounds room context sent with each completion
	TokenBudget int `toml:"token_budget" json:"token_budget"`
}

// RetryConfig configures failure retries for one send operation.
type RetryConfig struct {
	MaxAttempts     int `toml:"max_attempts" json:"max_attempts"`
	BaseDelayMs     int `toml:"base_delay_ms" json:"base_delay_ms"`
	RateLimitFactor int `toml:"rate_limit_factor" json:"rate_limit_factor"`
}

// AnimConfig configures the typewriter reveal.
type AnimConfig struct {
	ChunkSize         int `toml:"chunk_size" json:"chunk_size"`
	TickIntervalMs    int `toml:"tick_interval_ms" json:"tick_interval_ms"`
	AdaptiveThreshold int `toml:"adaptive_threshold" json:"adaptive_threshold"`
	TargetDurationMs  int `toml:"target_duration_ms" json:"target_duration_ms"`
	MinChunkSize      int `toml:"min_chunk_size" json:"min_chunk_size"`
	MaxChunkSize      int `toml:"max_chunk_size" json:"max_chunk_size"`
	MinTickIntervalMs int `toml:"min_tick_interval_ms" json:"min_tick_interval_ms"`
}

// StorageConfig configures durable storage paths and replication polling.
type StorageConfig struct {
	// DatabasePath is the SQLite file; ":memory:" for ephemeral runs
	DatabasePath string `toml:"database_path" json:"database_path"`

	// PrefsPath is the key-value preferences file
	PrefsPath string `toml:"prefs_path" json:"prefs_path"`

	// PollAttempts and PollDelayMs bound read-after-write verification
	PollAttempts int `toml:"poll_attempts" json:"poll_attempts"`
	PollDelayMs  int `toml:"poll_delay_ms" json:"poll_delay_ms"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultModel: "gpt-3.5-turbo",
		Backend: BackendConfig{
			URL:               "http://127.0.0.1:8080",
			TimeoutSeconds:    60,
			RequestsPerSecond: 2,
			TokenBudget:       8000,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelayMs:     1000,
			RateLimitFactor: 3,
		},
		Anim: AnimConfig{
			ChunkSize:         3,
			TickIntervalMs:    30,
			AdaptiveThreshold: 600,
			TargetDurationMs:  2500,
			MinChunkSize:      3,
			MaxChunkSize:      40,
			MinTickIntervalMs: 16,
		},
		Storage: StorageConfig{
			DatabasePath: defaultPath("parley.db"),
			PrefsPath:    defaultPath("prefs.json"),
			PollAttempts: 10,
			PollDelayMs:  500,
		},
	}
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".parley", name)
}

// =============================================================================
// LOADING
// =============================================================================

// ConfigDir returns the parley configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".parley"), nil
}

// Load reads configuration from the default locations, trying TOML first
// and JSON second, applies environment overrides, and validates.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}

	for _, candidate := range []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.json"),
	} {
		if _, statErr := os.Stat(candidate); statErr == nil {
			return LoadFromPath(candidate)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	return cfg, cfg.Validate()
}

// LoadFromPath reads configuration from an explicit file. The format is
// chosen by extension: .toml or .json.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load TOML config: %w", err)
		}
	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to load JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies PARLEY_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("PARLEY_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if url := os.Getenv("PARLEY_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if db := os.Getenv("PARLEY_DB"); db != "" {
		c.Storage.DatabasePath = db
	}
	if attempts := os.Getenv("PARLEY_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			c.Retry.MaxAttempts = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return fmt.Errorf("default_model must not be empty")
	}
	if _, err := url.Parse(c.Backend.URL); err != nil {
		return fmt.Errorf("backend url is invalid: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Anim.MinChunkSize > c.Anim.MaxChunkSize {
		return fmt.Errorf("animation.min_chunk_size exceeds max_chunk_size")
	}
	if c.Storage.PollAttempts < 1 {
		return fmt.Errorf("storage.poll_attempts must be at least 1")
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// BackendTimeout returns the request timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the base backoff delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// PollDelay returns the replication poll delay as a duration.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.Storage.PollDelayMs) * time.Millisecond
}
