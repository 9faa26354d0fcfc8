// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package config loads and validates the Bifurcus configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in increasing precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Bifurcus server.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Ingest      IngestConfig      `koanf:"ingest"`
	API         APIConfig         `koanf:"api"`
	Experiments ExperimentsConfig `koanf:"experiments"`
	Logging     LoggingConfig     `koanf:"logging"`
	Simulation  SimulationConfig  `koanf:"simulation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB file path. ":memory:" runs fully in memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB's memory usage, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`

	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// IngestConfig tunes the event pipeline between the API and the database.
type IngestConfig struct {
	// BufferSize is the gochannel buffer per topic.
	BufferSize int `koanf:"buffer_size"`

	RetryCount           int           `koanf:"retry_count"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	PoisonQueueEnabled   bool          `koanf:"poison_queue_enabled"`
	PoisonQueueTopic     string        `koanf:"poison_queue_topic"`
	CloseTimeout         time.Duration `koanf:"close_timeout"`
}

// APIConfig holds API surface settings.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// ExperimentsConfig supplies engine parameter defaults.
type ExperimentsConfig struct {
	// DefaultAlpha is the significance level applied when a create
	// request omits one. Must lie strictly within (0, 1).
	DefaultAlpha float64 `koanf:"default_alpha"`

	DefaultMinSampleSize int `koanf:"default_min_sample_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SimulationConfig drives the optional synthetic engagement stream.
type SimulationConfig struct {
	Enabled bool `koanf:"enabled"`

	// Users is the synthetic population size.
	Users int `koanf:"users"`

	// Seed makes the generated stream reproducible.
	Seed int64 `koanf:"seed"`

	// EventsPerSecond paces event generation. 0 means unpaced.
	EventsPerSecond float64 `koanf:"events_per_second"`

	// ControlCTR and TreatmentCTR are the per-arm engagement means;
	// NoiseStdDev is the shared normal noise around them.
	ControlCTR   float64 `koanf:"control_ctr"`
	TreatmentCTR float64 `koanf:"treatment_ctr"`
	NoiseStdDev  float64 `koanf:"noise_std_dev"`
}

// Validate checks the configuration for values that cannot work.
// A validation failure is fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	if c.Ingest.BufferSize < 0 {
		return fmt.Errorf("ingest.buffer_size must be >= 0, got %d", c.Ingest.BufferSize)
	}
	if c.Ingest.RetryCount < 0 {
		return fmt.Errorf("ingest.retry_count must be >= 0, got %d", c.Ingest.RetryCount)
	}
	if c.API.DefaultPageSize < 1 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api page sizes invalid: default=%d max=%d",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	if c.Experiments.DefaultAlpha <= 0 || c.Experiments.DefaultAlpha >= 1 {
		return fmt.Errorf("experiments.default_alpha %v must be within (0, 1)",
			c.Experiments.DefaultAlpha)
	}
	if c.Experiments.DefaultMinSampleSize < 1 {
		return fmt.Errorf("experiments.default_min_sample_size must be >= 1, got %d",
			c.Experiments.DefaultMinSampleSize)
	}
	if c.Simulation.Enabled {
		if c.Simulation.Users < 1 {
			return fmt.Errorf("simulation.users must be >= 1, got %d", c.Simulation.Users)
		}
		if c.Simulation.EventsPerSecond < 0 {
			return fmt.Errorf("simulation.events_per_second must be >= 0, got %v",
				c.Simulation.EventsPerSecond)
		}
	}
	return nil
}
