// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/bifurcus/internal/metrics"
	"github.com/tomtom215/bifurcus/internal/models"
)

// SaveExperiment upserts the experiment header row. Called on create and
// on every lifecycle transition, so status and timestamps stay current.
func (db *DB) SaveExperiment(ctx context.Context, exp *models.Experiment) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO experiments
			(id, name, description, traffic_split, target_metric,
			 minimum_sample_size, significance_level, status,
			 created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, exp.TrafficSplit, exp.TargetMetric,
		exp.MinSampleSize, exp.Alpha, string(exp.Status),
		exp.CreatedAt, nullableTime(exp.StartedAt), nullableTime(exp.EndedAt),
	)
	metrics.RecordDBWrite("experiments", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save experiment %s: %w", exp.ID, err)
	}
	return nil
}

// SaveVariant inserts one variant arm. Position 0 is control, 1 treatment.
func (db *DB) SaveVariant(ctx context.Context, experimentID string, position int, v *models.Variant) error {
	configJSON, err := json.Marshal(v.Config)
	if err != nil {
		return fmt.Errorf("marshal variant config: %w", err)
	}

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO variants
			(experiment_id, name, position, config, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		experimentID, v.Name, position, string(configJSON), v.CreatedAt,
	)
	metrics.RecordDBWrite("variants", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save variant %s/%s: %w", experimentID, v.Name, err)
	}
	return nil
}

// SaveAssignment records a user's variant membership. Assignment events
// are re-published on every request for the same user, so replays hit the
// primary key and are ignored.
func (db *DB) SaveAssignment(ctx context.Context, experimentID, userID, variant string, at time.Time) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO assignments (experiment_id, user_id, variant, assigned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		experimentID, userID, variant, at,
	)
	metrics.RecordDBWrite("assignments", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save assignment %s/%s: %w", experimentID, userID, err)
	}
	return nil
}

// SaveObservation appends one observation row.
func (db *DB) SaveObservation(ctx context.Context, experimentID, variant, metric string, obs models.Observation) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO observations
			(id, experiment_id, variant, user_id, metric, value, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), experimentID, variant, obs.UserID, metric, obs.Value, obs.Timestamp,
	)
	metrics.RecordDBWrite("observations", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save observation %s/%s/%s: %w", experimentID, variant, metric, err)
	}
	return nil
}

// SaveAnalysisResult upserts the experiment's analysis outcome.
func (db *DB) SaveAnalysisResult(ctx context.Context, experimentID string, r *models.AnalysisResult) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_results
			(experiment_id, control_variant, treatment_variant,
			 control_mean, treatment_mean, mean_difference,
			 t_statistic, p_value, is_significant, effect_size,
			 confidence_level, ci_lower, ci_upper,
			 control_n, treatment_n, degenerate, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		experimentID, r.ControlVariant, r.TreatmentVariant,
		r.ControlMean, r.TreatmentMean, r.MeanDifference,
		r.TStatistic, r.PValue, r.IsSignificant, r.EffectSize,
		r.ConfidenceLevel, r.Interval.Lower, r.Interval.Upper,
		r.SampleSizes[r.ControlVariant], r.SampleSizes[r.TreatmentVariant],
		r.Degenerate, r.AnalyzedAt,
	)
	metrics.RecordDBWrite("analysis_results", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save analysis result %s: %w", experimentID, err)
	}
	return nil
}

// LoadExperiments reassembles the full engine state from the store:
// experiments with their variants, assignments, observations, and any
// analysis result. Called once at startup.
func (db *DB) LoadExperiments(ctx context.Context) ([]*models.Experiment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, description, traffic_split, target_metric,
		       minimum_sample_size, significance_level, status,
		       created_at, started_at, ended_at
		FROM experiments
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query experiments: %w", err)
	}
	defer closeWithLog(rows, "experiments rows")

	var exps []*models.Experiment
	for rows.Next() {
		exp := &models.Experiment{}
		var status string
		var startedAt, endedAt sql.NullTime
		if err := rows.Scan(
			&exp.ID, &exp.Name, &exp.Description, &exp.TrafficSplit, &exp.TargetMetric,
			&exp.MinSampleSize, &exp.Alpha, &status,
			&exp.CreatedAt, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exp.Status = models.Status(status)
		if startedAt.Valid {
			t := startedAt.Time
			exp.StartedAt = &t
		}
		if endedAt.Valid {
			t := endedAt.Time
			exp.EndedAt = &t
		}
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}

	for _, exp := range exps {
		if err := db.loadVariants(ctx, exp); err != nil {
			return nil, err
		}
		if err := db.loadAssignments(ctx, exp); err != nil {
			return nil, err
		}
		if err := db.loadObservations(ctx, exp); err != nil {
			return nil, err
		}
		if err := db.loadAnalysisResult(ctx, exp); err != nil {
			return nil, err
		}
	}
	return exps, nil
}

func (db *DB) loadVariants(ctx context.Context, exp *models.Experiment) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT name, config, created_at
		FROM variants
		WHERE experiment_id = ?
		ORDER BY position`, exp.ID)
	if err != nil {
		return fmt.Errorf("query variants for %s: %w", exp.ID, err)
	}
	defer closeWithLog(rows, "variants rows")

	for rows.Next() {
		var name, configJSON string
		var createdAt time.Time
		if err := rows.Scan(&name, &configJSON, &createdAt); err != nil {
			return fmt.Errorf("scan variant: %w", err)
		}

		var cfg map[string]interface{}
		if configJSON != "" {
			if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
				return fmt.Errorf("unmarshal variant config %s/%s: %w", exp.ID, name, err)
			}
		}

		v := models.NewVariant(name, cfg)
		v.CreatedAt = createdAt
		exp.Variants = append(exp.Variants, v)
	}
	return rows.Err()
}

func (db *DB) loadAssignments(ctx context.Context, exp *models.Experiment) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, variant
		FROM assignments
		WHERE experiment_id = ?`, exp.ID)
	if err != nil {
		return fmt.Errorf("query assignments for %s: %w", exp.ID, err)
	}
	defer closeWithLog(rows, "assignments rows")

	for rows.Next() {
		var userID, variant string
		if err := rows.Scan(&userID, &variant); err != nil {
			return fmt.Errorf("scan assignment: %w", err)
		}
		if v := exp.Variant(variant); v != nil {
			v.AssignedUsers[userID] = true
		}
	}
	return rows.Err()
}

func (db *DB) loadObservations(ctx context.Context, exp *models.Experiment) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT variant, user_id, metric, value, observed_at
		FROM observations
		WHERE experiment_id = ?
		ORDER BY observed_at`, exp.ID)
	if err != nil {
		return fmt.Errorf("query observations for %s: %w", exp.ID, err)
	}
	defer closeWithLog(rows, "observations rows")

	for rows.Next() {
		var variant, userID, metric string
		var value float64
		var observedAt time.Time
		if err := rows.Scan(&variant, &userID, &metric, &value, &observedAt); err != nil {
			return fmt.Errorf("scan observation: %w", err)
		}
		if v := exp.Variant(variant); v != nil {
			v.Metrics[metric] = append(v.Metrics[metric], models.Observation{
				UserID:    userID,
				Value:     value,
				Timestamp: observedAt,
			})
		}
	}
	return rows.Err()
}

func (db *DB) loadAnalysisResult(ctx context.Context, exp *models.Experiment) error {
	r := &models.AnalysisResult{SampleSizes: make(map[string]int)}
	var controlN, treatmentN int
	err := db.conn.QueryRowContext(ctx, `
		SELECT control_variant, treatment_variant,
		       control_mean, treatment_mean, mean_difference,
		       t_statistic, p_value, is_significant, effect_size,
		       confidence_level, ci_lower, ci_upper,
		       control_n, treatment_n, degenerate, analyzed_at
		FROM analysis_results
		WHERE experiment_id = ?`, exp.ID).Scan(
		&r.ControlVariant, &r.TreatmentVariant,
		&r.ControlMean, &r.TreatmentMean, &r.MeanDifference,
		&r.TStatistic, &r.PValue, &r.IsSignificant, &r.EffectSize,
		&r.ConfidenceLevel, &r.Interval.Lower, &r.Interval.Upper,
		&controlN, &treatmentN, &r.Degenerate, &r.AnalyzedAt,
	)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query analysis result for %s: %w", exp.ID, err)
	}

	r.SampleSizes[r.ControlVariant] = controlN
	r.SampleSizes[r.TreatmentVariant] = treatmentN
	exp.Result = r
	return nil
}

// CountObservations reports the stored observation rows for an experiment.
// Used by readiness checks and tests.
func (db *DB) CountObservations(ctx context.Context, experimentID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE experiment_id = ?`, experimentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count observations for %s: %w", experimentID, err)
	}
	return n, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
