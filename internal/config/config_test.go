// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_DefaultsWhenNoFiles(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.URL != "http://localhost:8000/api" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Stream.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Stream.MaxRetries)
	}
	if cfg.Stream.RetryDelayMs != 400 {
		t.Errorf("RetryDelayMs = %d, want 400", cfg.Stream.RetryDelayMs)
	}
	if !cfg.UI.Markdown {
		t.Error("UI.Markdown should default to true")
	}
}

func TestLoadFrom_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `
version = "1"

[server]
url = "https://copilot.example.com/api"

[stream]
max_retries = 5
retry_delay_ms = 250

[ui]
theme = "dark"
markdown = false
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Server.URL != "https://copilot.example.com/api" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Stream.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Stream.MaxRetries)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", cfg.UI.Theme)
	}
	if cfg.UI.Markdown {
		t.Error("Markdown should be false")
	}
}

func TestLoadFrom_JSONFallback(t *testing.T) {
	dir := t.TempDir()
	content := `{"server": {"url": "http://10.0.0.5:8000/api"}, "stream": {"max_retries": 1, "retry_delay_ms": 100}, "ui": {"theme": "light", "markdown": true}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.URL != "http://10.0.0.5:8000/api" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q", cfg.UI.Theme)
	}
}

func TestLoadFrom_TOMLTakesPrecedenceOverJSON(t *testing.T) {
	dir := t.TempDir()
	tomlContent := "[server]\nurl = \"http://from-toml:8000/api\"\n"
	jsonContent := `{"server": {"url": "http://from-json:8000/api"}}`
	os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tomlContent), 0o600)
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(jsonContent), 0o600)

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.URL != "http://from-toml:8000/api" {
		t.Errorf("Server.URL = %q, want TOML value", cfg.Server.URL)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("OPSDECK_SERVER_URL", "http://override:9000/api")
	t.Setenv("OPSDECK_MAX_RETRIES", "7")
	t.Setenv("OPSDECK_THEME", "light")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.URL != "http://override:9000/api" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Stream.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.Stream.MaxRetries)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
}

func TestLoadFrom_MalformedTOMLFails(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[[[not toml"), 0o600)

	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected parse error for malformed TOML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty url", func(c *Config) { c.Server.URL = "" }, false},
		{"relative url", func(c *Config) { c.Server.URL = "localhost:8000" }, false},
		{"ftp scheme", func(c *Config) { c.Server.URL = "ftp://x/api" }, false},
		{"negative retries", func(c *Config) { c.Stream.MaxRetries = -1 }, false},
		{"zero delay", func(c *Config) { c.Stream.RetryDelayMs = 0 }, false},
		{"bad theme", func(c *Config) { c.UI.Theme = "solarized" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate = nil, want error")
			}
		})
	}
}

func TestCacheDefaultPath(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Cache.Path != filepath.Join(dir, "cache.db") {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Server.URL = "https://copilot.example.com/api"
	cfg.Stream.MaxRetries = 4
	cfg.UI.Theme = "light"

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom after Save failed: %v", err)
	}
	if loaded.Server.URL != cfg.Server.URL {
		t.Errorf("Server.URL = %q, want %q", loaded.Server.URL, cfg.Server.URL)
	}
	if loaded.Stream.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", loaded.Stream.MaxRetries)
	}
	if loaded.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", loaded.UI.Theme)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "not-a-url"
	if err := cfg.Save(t.TempDir()); err == nil {
		t.Fatal("expected validation error")
	}
}
