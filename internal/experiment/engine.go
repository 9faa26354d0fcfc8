// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package experiment implements the in-memory A/B experiment engine:
// the registry with its draft -> running -> completed lifecycle, the
// consistent-hash assignment router, the append-only metric ledger, and
// the two-sample statistical analyzer that runs when an experiment stops.
//
// The engine is the source of truth at runtime. It performs no I/O on the
// assignment or observation path; persistence happens asynchronously
// through the ingest pipeline, and state is restored from the database at
// startup via Restore.
package experiment

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/models"
)

// Defaults supplies fallback experiment parameters from configuration.
type Defaults struct {
	// Alpha is the significance level used when a create request omits one.
	Alpha float64

	// MinSampleSize is the minimum sample size used when omitted.
	MinSampleSize int
}

// DefaultParams returns the built-in fallbacks matching the demo defaults.
func DefaultParams() Defaults {
	return Defaults{Alpha: 0.05, MinSampleSize: 100}
}

// entry pairs an experiment with its own mutex. All assign/record/stop
// traffic for one experiment serializes on entry.mu; different experiments
// proceed fully in parallel.
type entry struct {
	mu  sync.Mutex
	exp *models.Experiment
}

// Engine is the experiment registry, router, ledger, and analyzer.
// All methods are safe for concurrent use.
type Engine struct {
	mu          sync.RWMutex
	experiments map[string]*entry
	defaults    Defaults
	logger      zerolog.Logger
}

// NewEngine creates an empty engine with the given parameter defaults.
func NewEngine(defaults Defaults) *Engine {
	if defaults.Alpha <= 0 || defaults.Alpha >= 1 {
		defaults.Alpha = DefaultParams().Alpha
	}
	if defaults.MinSampleSize <= 0 {
		defaults.MinSampleSize = DefaultParams().MinSampleSize
	}
	return &Engine{
		experiments: make(map[string]*entry),
		defaults:    defaults,
		logger:      logging.With().Str("component", "experiment").Logger(),
	}
}

// CreateParams holds the inputs for Create. Zero Alpha or MinSampleSize
// fall back to the engine defaults.
type CreateParams struct {
	Name          string
	Description   string
	TrafficSplit  float64
	TargetMetric  string
	MinSampleSize int
	Alpha         float64
}

// Create registers a new experiment in draft state and returns its ID.
// TrafficSplit is the fraction of users routed to the control arm and
// must lie within [0, 1].
func (e *Engine) Create(p CreateParams) (string, error) {
	if p.TrafficSplit < 0 || p.TrafficSplit > 1 {
		return "", ErrInvalidState
	}
	if p.Alpha == 0 {
		p.Alpha = e.defaults.Alpha
	}
	if p.MinSampleSize == 0 {
		p.MinSampleSize = e.defaults.MinSampleSize
	}

	exp := &models.Experiment{
		ID:            uuid.NewString(),
		Name:          p.Name,
		Description:   p.Description,
		TrafficSplit:  p.TrafficSplit,
		TargetMetric:  p.TargetMetric,
		MinSampleSize: p.MinSampleSize,
		Alpha:         p.Alpha,
		Status:        models.StatusDraft,
		CreatedAt:     time.Now().UTC(),
		Variants:      make([]*models.Variant, 0, models.MaxVariants),
	}

	e.mu.Lock()
	e.experiments[exp.ID] = &entry{exp: exp}
	e.mu.Unlock()

	e.logger.Info().
		Str("experiment_id", exp.ID).
		Str("name", exp.Name).
		Float64("traffic_split", exp.TrafficSplit).
		Str("target_metric", exp.TargetMetric).
		Msg("Experiment created")

	return exp.ID, nil
}

// AddVariant adds a named variant with an opaque config payload.
// The first variant added is the control arm, the second the treatment arm.
// Variants can only be added while the experiment is in draft state.
func (e *Engine) AddVariant(experimentID, name string, config map[string]interface{}) error {
	ent, err := e.entry(experimentID)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.exp.Status != models.StatusDraft {
		return ErrInvalidState
	}
	if len(ent.exp.Variants) >= models.MaxVariants {
		return ErrVariantLimit
	}
	if ent.exp.Variant(name) != nil {
		return ErrDuplicateVariant
	}

	ent.exp.Variants = append(ent.exp.Variants, models.NewVariant(name, config))

	e.logger.Info().
		Str("experiment_id", experimentID).
		Str("variant", name).
		Int("variant_count", len(ent.exp.Variants)).
		Msg("Variant added")

	return nil
}

// Start transitions a draft experiment with exactly two variants to running
// and records the start timestamp.
func (e *Engine) Start(experimentID string) error {
	ent, err := e.entry(experimentID)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.exp.Status != models.StatusDraft || len(ent.exp.Variants) != models.MaxVariants {
		return ErrInvalidState
	}

	now := time.Now().UTC()
	ent.exp.Status = models.StatusRunning
	ent.exp.StartedAt = &now

	e.logger.Info().
		Str("experiment_id", experimentID).
		Strs("variants", ent.exp.VariantNames()).
		Msg("Experiment started")

	return nil
}

// Stop transitions a running experiment to completed, records the end
// timestamp, and runs the statistical analyzer on a consistent snapshot of
// the target-metric observations. The returned result is nil when either
// variant has no observations for the target metric.
//
// The experiment lock is held for the whole stop, so a concurrent Record
// either lands entirely before the snapshot or is rejected after the
// transition; observations are never half-counted.
func (e *Engine) Stop(experimentID string) (*models.AnalysisResult, error) {
	ent, err := e.entry(experimentID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.exp.Status != models.StatusRunning {
		return nil, ErrInvalidState
	}

	now := time.Now().UTC()
	ent.exp.Status = models.StatusCompleted
	ent.exp.EndedAt = &now

	result := analyze(ent.exp)
	ent.exp.Result = result

	evt := e.logger.Info().
		Str("experiment_id", experimentID).
		Str("target_metric", ent.exp.TargetMetric)
	if result == nil {
		evt.Msg("Experiment stopped; analysis skipped, missing observations")
	} else {
		evt.Float64("p_value", result.PValue).
			Bool("significant", result.IsSignificant).
			Bool("degenerate", result.Degenerate).
			Msg("Experiment stopped and analyzed")
	}

	return cloneResult(result), nil
}

// Get returns a deep snapshot of the experiment.
func (e *Engine) Get(experimentID string) (*models.Experiment, error) {
	ent, err := e.entry(experimentID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	return cloneExperiment(ent.exp), nil
}

// List returns listing projections for all experiments, newest first.
func (e *Engine) List() []models.ExperimentListItem {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.experiments))
	for _, ent := range e.experiments {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	items := make([]models.ExperimentListItem, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		items = append(items, models.ExperimentListItem{
			ID:        ent.exp.ID,
			Name:      ent.exp.Name,
			Status:    ent.exp.Status,
			CreatedAt: ent.exp.CreatedAt,
			StartedAt: cloneTime(ent.exp.StartedAt),
			EndedAt:   cloneTime(ent.exp.EndedAt),
			Variants:  ent.exp.VariantNames(),
			HasResult: ent.exp.Result != nil,
		})
		ent.mu.Unlock()
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

// Result returns a copy of the stored analysis result, or nil when the
// experiment has not been analyzed yet.
func (e *Engine) Result(experimentID string) (*models.AnalysisResult, error) {
	ent, err := e.entry(experimentID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	return cloneResult(ent.exp.Result), nil
}

// Restore replaces the engine contents with previously persisted
// experiments. Used once at startup before any traffic is served.
func (e *Engine) Restore(exps []*models.Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.experiments = make(map[string]*entry, len(exps))
	for _, exp := range exps {
		e.experiments[exp.ID] = &entry{exp: exp}
	}

	e.logger.Info().Int("experiments", len(exps)).Msg("Engine state restored")
}

// Count returns the number of registered experiments.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.experiments)
}

// entry looks up the guarded entry for an experiment ID.
func (e *Engine) entry(experimentID string) (*entry, error) {
	e.mu.RLock()
	ent, ok := e.experiments[experimentID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ent, nil
}

// cloneExperiment deep-copies an experiment so callers can read it without
// holding the entry lock.
func cloneExperiment(exp *models.Experiment) *models.Experiment {
	out := *exp
	out.StartedAt = cloneTime(exp.StartedAt)
	out.EndedAt = cloneTime(exp.EndedAt)
	out.Result = cloneResult(exp.Result)
	out.Variants = make([]*models.Variant, len(exp.Variants))
	for i, v := range exp.Variants {
		out.Variants[i] = cloneVariant(v)
	}
	return &out
}

func cloneVariant(v *models.Variant) *models.Variant {
	out := *v
	out.Config = make(map[string]interface{}, len(v.Config))
	for k, val := range v.Config {
		out.Config[k] = val
	}
	out.AssignedUsers = make(map[string]bool, len(v.AssignedUsers))
	for k := range v.AssignedUsers {
		out.AssignedUsers[k] = true
	}
	out.Metrics = make(map[string][]models.Observation, len(v.Metrics))
	for name, obs := range v.Metrics {
		cp := make([]models.Observation, len(obs))
		copy(cp, obs)
		out.Metrics[name] = cp
	}
	return &out
}

func cloneResult(r *models.AnalysisResult) *models.AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.SampleSizes = make(map[string]int, len(r.SampleSizes))
	for k, n := range r.SampleSizes {
		out.SampleSizes[k] = n
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
