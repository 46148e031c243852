// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for opsdeck.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.opsdeck/config.toml
//   - ~/.opsdeck/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/opsdeck-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete opsdeck configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Stream reconnection configuration
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Local cache configuration
	Cache CacheConfig `toml:"cache" json:"cache"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig locates the copilot API.
type ServerConfig struct {
	// URL is the API base, e.g. "http://localhost:8000/api".
	URL string `toml:"url" json:"url"`
}

// StreamConfig controls chat stream reconnection.
type StreamConfig struct {
	// MaxRetries is the number of reconnect attempts after the first try.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RetryDelayMs is the linear backoff base in milliseconds.
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms"`
}

// RetryDelay returns the backoff base as a duration.
func (s StreamConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// CacheConfig controls the local sqlite transcript cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"` // Default: ~/.opsdeck/cache.db
}

// UIConfig contains display settings.
type UIConfig struct {
	// Theme is "dark", "light", or "auto" (detect from terminal).
	Theme string `toml:"theme" json:"theme"`
	// Markdown enables glamour rendering of assistant messages.
	Markdown bool `toml:"markdown" json:"markdown"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			URL: "http://localhost:8000/api",
		},
		Stream: StreamConfig{
			MaxRetries:   2,
			RetryDelayMs: 400,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
	}
}

// Dir returns the opsdeck configuration directory (~/.opsdeck).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".opsdeck"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// ErrInvalidConfig indicates the loaded configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads the configuration from the default locations, applies
// environment overrides, and validates the result.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads the configuration from a specific directory. Missing files
// fall back to defaults; a file that exists but fails to parse is an error.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default()

	tomlPath := filepath.Join(dir, "config.toml")
	jsonPath := filepath.Join(dir, "config.json")

	switch {
	case fileExists(tomlPath):
		if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", tomlPath, err)
		}
	case fileExists(jsonPath):
		raw, err := os.ReadFile(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", jsonPath, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", jsonPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(dir, "cache.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies OPSDECK_* environment variables on top of the
// file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPSDECK_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("OPSDECK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Stream.MaxRetries = n
		}
	}
	if v := os.Getenv("OPSDECK_RETRY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.RetryDelayMs = n
		}
	}
	if v := os.Getenv("OPSDECK_THEME"); v != "" {
		cfg.UI.Theme = v
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.Server.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: server.url %q is not an absolute URL", ErrInvalidConfig, c.Server.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: server.url scheme %q must be http or https", ErrInvalidConfig, parsed.Scheme)
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("%w: stream.max_retries must be >= 0", ErrInvalidConfig)
	}
	if c.Stream.RetryDelayMs <= 0 {
		return fmt.Errorf("%w: stream.retry_delay_ms must be > 0", ErrInvalidConfig)
	}
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return fmt.Errorf("%w: ui.theme %q must be dark, light, or auto", ErrInvalidConfig, c.UI.Theme)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration as TOML to dir/config.toml. The write is
// atomic so a crash mid-save cannot corrupt an existing config.
func (c *Config) Save(dir string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(dir, "config.toml")
	return util.AtomicWriteFile(path, buf.Bytes(), 0o644)
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
