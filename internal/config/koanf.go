// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bifurcus/config.yaml",
	"/etc/bifurcus/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8217,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path:                   "/data/bifurcus.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Ingest: IngestConfig{
			BufferSize:           1024,
			RetryCount:           3,
			RetryInitialInterval: 100 * time.Millisecond,
			PoisonQueueEnabled:   true,
			PoisonQueueTopic:     "events.poison",
			CloseTimeout:         30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Experiments: ExperimentsConfig{
			DefaultAlpha:         0.05,
			DefaultMinSampleSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Simulation: SimulationConfig{
			Enabled:         false,
			Users:           1000,
			Seed:            42,
			EventsPerSecond: 0,
			ControlCTR:      0.12,
			TreatmentCTR:    0.15,
			NoiseStdDev:     0.03,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// A config file that exists but cannot be parsed is an error; the caller
// treats it as fatal rather than silently running on defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// BIFURCUS_SERVER_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are config paths parsed as comma-separated slices when
// supplied via environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices.
// Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envPrefix namespaces all Bifurcus environment variables.
const envPrefix = "BIFURCUS_"

// envTransformFunc maps environment variable names to koanf paths:
//
//   - BIFURCUS_SERVER_PORT -> server.port
//   - BIFURCUS_DATABASE_PATH -> database.path
//   - BIFURCUS_LOGGING_LEVEL -> logging.level
//
// Multi-word leaf keys need an explicit mapping because the section and
// the key share the underscore separator.
func envTransformFunc(key string) string {
	if !strings.HasPrefix(key, envPrefix) {
		// Unprefixed variables are skipped so random environment noise
		// never pollutes the configuration.
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		"server_host":             "server.host",
		"server_port":             "server.port",
		"server_timeout":          "server.timeout",
		"server_shutdown_timeout": "server.shutdown_timeout",

		"database_path":                     "database.path",
		"database_max_memory":               "database.max_memory",
		"database_threads":                  "database.threads",
		"database_preserve_insertion_order": "database.preserve_insertion_order",

		"ingest_buffer_size":            "ingest.buffer_size",
		"ingest_retry_count":            "ingest.retry_count",
		"ingest_retry_initial_interval": "ingest.retry_initial_interval",
		"ingest_poison_queue_enabled":   "ingest.poison_queue_enabled",
		"ingest_poison_queue_topic":     "ingest.poison_queue_topic",
		"ingest_close_timeout":          "ingest.close_timeout",

		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"api_rate_limit_reqs":   "api.rate_limit_reqs",
		"api_rate_limit_window": "api.rate_limit_window",
		"api_cors_origins":      "api.cors_origins",

		"experiments_default_alpha":           "experiments.default_alpha",
		"experiments_default_min_sample_size": "experiments.default_min_sample_size",

		"logging_level":  "logging.level",
		"logging_format": "logging.format",
		"logging_caller": "logging.caller",

		"simulation_enabled":           "simulation.enabled",
		"simulation_users":             "simulation.users",
		"simulation_seed":              "simulation.seed",
		"simulation_events_per_second": "simulation.events_per_second",
		"simulation_control_ctr":       "simulation.control_ctr",
		"simulation_treatment_ctr":     "simulation.treatment_ctr",
		"simulation_noise_std_dev":     "simulation.noise_std_dev",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
