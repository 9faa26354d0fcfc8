// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package main is the entry point for the Bifurcus server.
//
// Bifurcus is a self-hosted A/B experiment engine for news analytics.
// It manages headline and layout experiments through a draft, running,
// completed lifecycle, routes readers deterministically onto variants,
// collects engagement observations, and analyzes completed experiments
// with a two-sample t-test.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, and environment (Koanf v2)
//  2. Database: DuckDB for experiment, assignment, and observation persistence
//  3. Engine: in-memory experiment state restored from the database
//  4. Ingest: Watermill pub/sub carrying assignment and observation events
//     to the database asynchronously
//  5. HTTP Server: REST API under /api/v1 with Prometheus metrics
//
// All long-running services run under a suture supervision tree with
// failure isolation between the ingest pipeline and the API layer.
//
// # Configuration
//
// Configuration keys can be overridden with BIFURCUS_-prefixed
// environment variables, for example:
//
//	export BIFURCUS_SERVER_PORT=8217
//	export BIFURCUS_DATABASE_PATH=/data/bifurcus.duckdb
//	export BIFURCUS_SIMULATION_ENABLED=true
//	./bifurcus
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the ingest router finishes
// persisting buffered events within its close timeout, and the database
// is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/bifurcus/internal/api"
	"github.com/tomtom215/bifurcus/internal/config"
	"github.com/tomtom215/bifurcus/internal/database"
	"github.com/tomtom215/bifurcus/internal/experiment"
	"github.com/tomtom215/bifurcus/internal/ingest"
	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/simulate"
	"github.com/tomtom215/bifurcus/internal/supervisor"
	"github.com/tomtom215/bifurcus/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Bool("simulation", cfg.Simulation.Enabled).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	store := database.NewBreakerStore(db)

	// Restore engine state from the last run before any traffic arrives.
	engine := experiment.NewEngine(experiment.Defaults{
		Alpha:         cfg.Experiments.DefaultAlpha,
		MinSampleSize: cfg.Experiments.DefaultMinSampleSize,
	})
	experiments, err := db.LoadExperiments(context.Background())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load persisted experiments")
	}
	engine.Restore(experiments)

	// Event pipeline: the API publishes assignment and observation
	// events; the ingest router persists them through the breaker store.
	wmLogger := ingest.NewWatermillLogger()
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.Ingest.BufferSize),
	}, wmLogger)
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pub/sub")
		}
	}()

	ingestRouter, err := ingest.NewRouter(&cfg.Ingest, pubsub, pubsub, ingest.NewProcessor(store), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ingest router")
	}
	publisher := ingest.NewPublisher(pubsub)

	handler := api.NewHandler(engine, store, publisher, db)
	router := api.NewRouter(handler, &cfg.API)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddPipelineService(services.NewIngestService(ingestRouter))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	// The synthetic stream is a one-shot demo run, not a supervised
	// service; a restart would create a new experiment on every crash.
	if cfg.Simulation.Enabled {
		go func() {
			select {
			case <-ingestRouter.Running():
			case <-ctx.Done():
				return
			}
			sim := simulate.New(&cfg.Simulation, engine)
			if _, err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("Synthetic engagement stream failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
