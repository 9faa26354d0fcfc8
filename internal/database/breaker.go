// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package database

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/metrics"
	"github.com/tomtom215/bifurcus/internal/models"
)

// BreakerStore wraps the store's write methods in a circuit breaker so a
// wedged database fails ingest handlers fast instead of stalling them.
// Reads are not wrapped; they happen once at startup.
type BreakerStore struct {
	db *DB
	cb *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerStore wraps db with a breaker that opens after 5 consecutive
// write failures and probes again after 30 seconds.
func NewBreakerStore(db *DB) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "duckdb",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}
	return &BreakerStore{db: db, cb: gobreaker.NewCircuitBreaker[interface{}](settings)}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func (s *BreakerStore) execute(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues("duckdb", "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues("duckdb", "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues("duckdb", "failure").Inc()
	}
	return err
}

// SaveExperiment persists the experiment header through the breaker.
func (s *BreakerStore) SaveExperiment(ctx context.Context, exp *models.Experiment) error {
	return s.execute(func() error { return s.db.SaveExperiment(ctx, exp) })
}

// SaveVariant persists a variant arm through the breaker.
func (s *BreakerStore) SaveVariant(ctx context.Context, experimentID string, position int, v *models.Variant) error {
	return s.execute(func() error { return s.db.SaveVariant(ctx, experimentID, position, v) })
}

// SaveAssignment persists a membership row through the breaker.
func (s *BreakerStore) SaveAssignment(ctx context.Context, experimentID, userID, variant string, at time.Time) error {
	return s.execute(func() error { return s.db.SaveAssignment(ctx, experimentID, userID, variant, at) })
}

// SaveObservation persists an observation row through the breaker.
func (s *BreakerStore) SaveObservation(ctx context.Context, experimentID, variant, metric string, obs models.Observation) error {
	return s.execute(func() error { return s.db.SaveObservation(ctx, experimentID, variant, metric, obs) })
}

// SaveAnalysisResult persists an analysis outcome through the breaker.
func (s *BreakerStore) SaveAnalysisResult(ctx context.Context, experimentID string, r *models.AnalysisResult) error {
	return s.execute(func() error { return s.db.SaveAnalysisResult(ctx, experimentID, r) })
}
