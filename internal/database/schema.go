// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries holds the full initial schema. Incremental changes
// after the first release go through migrations.go instead.
var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		traffic_split DOUBLE NOT NULL,
		target_metric TEXT NOT NULL,
		minimum_sample_size INTEGER NOT NULL,
		significance_level DOUBLE NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		ended_at TIMESTAMP
	)`,

	// position 0 is the control arm, 1 the treatment arm.
	`CREATE TABLE IF NOT EXISTS variants (
		experiment_id UUID NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		config TEXT,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (experiment_id, name)
	)`,

	// One row per (experiment, user); replays from the ingest pipeline
	// hit the primary key and are ignored.
	`CREATE TABLE IF NOT EXISTS assignments (
		experiment_id UUID NOT NULL,
		user_id TEXT NOT NULL,
		variant TEXT NOT NULL,
		assigned_at TIMESTAMP NOT NULL,
		PRIMARY KEY (experiment_id, user_id)
	)`,

	// Append-only observation log; mirrors the engine's ledger.
	`CREATE TABLE IF NOT EXISTS observations (
		id UUID PRIMARY KEY,
		experiment_id UUID NOT NULL,
		variant TEXT NOT NULL,
		user_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		value DOUBLE NOT NULL,
		observed_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS analysis_results (
		experiment_id UUID PRIMARY KEY,
		control_variant TEXT NOT NULL,
		treatment_variant TEXT NOT NULL,
		control_mean DOUBLE NOT NULL,
		treatment_mean DOUBLE NOT NULL,
		mean_difference DOUBLE NOT NULL,
		t_statistic DOUBLE NOT NULL,
		p_value DOUBLE NOT NULL,
		is_significant BOOLEAN NOT NULL,
		effect_size DOUBLE NOT NULL,
		confidence_level DOUBLE NOT NULL,
		ci_lower DOUBLE NOT NULL,
		ci_upper DOUBLE NOT NULL,
		control_n INTEGER NOT NULL,
		treatment_n INTEGER NOT NULL,
		degenerate BOOLEAN NOT NULL,
		analyzed_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_observations_experiment
		ON observations (experiment_id, metric)`,
}
