// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package simulate drives a reproducible synthetic engagement stream
// through the experiment engine. It exists for demos and load shaping:
// a seeded generator assigns a synthetic reader population to a
// headline experiment, records per-arm click-through observations, and
// stops the experiment so the analysis can be inspected immediately.
package simulate

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog"

	"github.com/tomtom215/bifurcus/internal/config"
	"github.com/tomtom215/bifurcus/internal/experiment"
	"github.com/tomtom215/bifurcus/internal/logging"
)

// MetricName is the engagement metric the synthetic stream records.
const MetricName = "click_through_rate"

// Simulator generates the synthetic stream. The same seed always
// produces the same assignments and observations.
type Simulator struct {
	cfg     *config.SimulationConfig
	engine  *experiment.Engine
	rng     *rand.Rand
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a simulator. EventsPerSecond of 0 runs unpaced.
func New(cfg *config.SimulationConfig, engine *experiment.Engine) *Simulator {
	limit := rate.Inf
	if cfg.EventsPerSecond > 0 {
		limit = rate.Limit(cfg.EventsPerSecond)
	}
	return &Simulator{
		cfg:     cfg,
		engine:  engine,
		rng:     rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // reproducibility matters here, not unpredictability
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.With().Str("component", "simulate").Logger(),
	}
}

// Run creates and executes one synthetic experiment end to end,
// returning the experiment ID. Each synthetic reader is assigned, emits
// one observation drawn from their arm's engagement distribution, and
// the experiment is stopped and analyzed once the population is drained.
func (s *Simulator) Run(ctx context.Context) (string, error) {
	id, err := s.engine.Create(experiment.CreateParams{
		Name:         "synthetic headline experiment",
		Description:  "seeded engagement stream for demos",
		TrafficSplit: 0.5,
		TargetMetric: MetricName,
	})
	if err != nil {
		return "", fmt.Errorf("create synthetic experiment: %w", err)
	}

	arms := []struct {
		name string
		mean float64
	}{
		{"control", s.cfg.ControlCTR},
		{"treatment", s.cfg.TreatmentCTR},
	}
	for _, arm := range arms {
		err := s.engine.AddVariant(id, arm.name, map[string]interface{}{
			"headline_style": arm.name,
			"expected_ctr":   arm.mean,
		})
		if err != nil {
			return "", fmt.Errorf("add variant %s: %w", arm.name, err)
		}
	}
	if err := s.engine.Start(id); err != nil {
		return "", fmt.Errorf("start synthetic experiment: %w", err)
	}

	s.logger.Info().
		Str("experiment_id", id).
		Int("users", s.cfg.Users).
		Int64("seed", s.cfg.Seed).
		Float64("events_per_second", s.cfg.EventsPerSecond).
		Msg("Synthetic engagement stream started")

	means := map[string]float64{
		"control":   s.cfg.ControlCTR,
		"treatment": s.cfg.TreatmentCTR,
	}
	for i := 0; i < s.cfg.Users; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return id, err
		}

		userID := fmt.Sprintf("sim-reader-%06d", i)
		variant, ok := s.engine.Assign(id, userID)
		if !ok {
			return id, experiment.ErrInvalidState
		}

		value := s.sample(means[variant])
		if err := s.engine.Record(id, userID, MetricName, value); err != nil {
			return id, fmt.Errorf("record synthetic observation: %w", err)
		}
	}

	result, err := s.engine.Stop(id)
	if err != nil {
		return id, fmt.Errorf("stop synthetic experiment: %w", err)
	}

	evt := s.logger.Info().Str("experiment_id", id)
	if result != nil {
		evt.Float64("control_mean", result.ControlMean).
			Float64("treatment_mean", result.TreatmentMean).
			Float64("p_value", result.PValue).
			Bool("significant", result.IsSignificant)
	}
	evt.Msg("Synthetic engagement stream complete")

	return id, nil
}

// sample draws an engagement value around the arm mean, clamped to the
// [0, 1] range a rate metric lives in.
func (s *Simulator) sample(mean float64) float64 {
	v := mean + s.rng.NormFloat64()*s.cfg.NoiseStdDev
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
