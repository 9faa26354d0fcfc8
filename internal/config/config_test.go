// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Experiments.DefaultAlpha != 0.05 {
		t.Errorf("DefaultAlpha = %v, want 0.05", cfg.Experiments.DefaultAlpha)
	}
	if cfg.Server.Port != 8217 {
		t.Errorf("Port = %d, want 8217", cfg.Server.Port)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/data/bifurcus.duckdb" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Ingest.RetryCount != 3 {
		t.Errorf("Ingest.RetryCount = %d, want 3", cfg.Ingest.RetryCount)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
experiments:
  default_alpha: 0.01
simulation:
  enabled: true
  users: 500
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000 from file", cfg.Server.Port)
	}
	if cfg.Experiments.DefaultAlpha != 0.01 {
		t.Errorf("DefaultAlpha = %v, want 0.01 from file", cfg.Experiments.DefaultAlpha)
	}
	if !cfg.Simulation.Enabled || cfg.Simulation.Users != 500 {
		t.Errorf("Simulation = %+v, want enabled with 500 users", cfg.Simulation)
	}
	// Untouched sections keep their defaults.
	if cfg.API.DefaultPageSize != 20 {
		t.Errorf("API.DefaultPageSize = %d, want default 20", cfg.API.DefaultPageSize)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BIFURCUS_SERVER_PORT", "9100")
	t.Setenv("BIFURCUS_LOGGING_LEVEL", "debug")
	t.Setenv("BIFURCUS_SERVER_TIMEOUT", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Server.Timeout != 45*time.Second {
		t.Errorf("Server.Timeout = %v, want 45s", cfg.Server.Timeout)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")
	t.Setenv("BIFURCUS_API_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.API.CORSOrigins) != 2 ||
		cfg.API.CORSOrigins[0] != "https://a.example" ||
		cfg.API.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v, want split and trimmed", cfg.API.CORSOrigins)
	}
}

func TestCorruptConfigFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: valid"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded on corrupt YAML, want error")
	}
}

func TestEnvTransformIgnoresUnprefixed(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want skipped", got)
	}
	if got := envTransformFunc("BIFURCUS_SERVER_PORT"); got != "server.port" {
		t.Errorf("envTransformFunc(BIFURCUS_SERVER_PORT) = %q, want server.port", got)
	}
	if got := envTransformFunc("BIFURCUS_UNKNOWN_KEY"); got != "" {
		t.Errorf("unmapped key = %q, want skipped", got)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"negative threads", func(c *Config) { c.Database.Threads = -1 }},
		{"alpha zero", func(c *Config) { c.Experiments.DefaultAlpha = 0 }},
		{"alpha one", func(c *Config) { c.Experiments.DefaultAlpha = 1 }},
		{"min sample zero", func(c *Config) { c.Experiments.DefaultMinSampleSize = 0 }},
		{"max below default page size", func(c *Config) { c.API.MaxPageSize = 5 }},
		{"negative retry", func(c *Config) { c.Ingest.RetryCount = -1 }},
		{"simulation no users", func(c *Config) {
			c.Simulation.Enabled = true
			c.Simulation.Users = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tt.name)
			}
		})
	}
}
