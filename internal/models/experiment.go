// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package models defines the typed records shared across Bifurcus components:
// experiments, variants, observations, analysis results, and the standard
// API response envelope.
package models

import "time"

// Status is the experiment lifecycle state.
//
// The only permitted transitions are draft -> running -> completed.
// There is no pause/resume and no deletion transition.
type Status string

// Experiment lifecycle states.
const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusCompleted:
		return true
	}
	return false
}

// MaxVariants is the hard cap on variants per experiment.
// Bifurcus is a strict two-arm framework, not N-arm.
const MaxVariants = 2

// Observation is a single metric measurement contributed by a user.
// Observations are append-only; there are no update or delete semantics.
type Observation struct {
	UserID    string    `json:"user_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Variant is one arm of a two-arm experiment.
//
// Config is an opaque payload passed through unmodified; the engine never
// interprets it. AssignedUsers holds membership only - no user data beyond
// the opaque identifier is stored. Metrics is an open mapping from metric
// name to an append-only observation list; any metric name is accepted
// because the framework is metric-agnostic.
type Variant struct {
	Name          string                   `json:"name"`
	Config        map[string]interface{}   `json:"config"`
	AssignedUsers map[string]bool          `json:"assigned_users"`
	Metrics       map[string][]Observation `json:"metrics"`
	CreatedAt     time.Time                `json:"created_at"`
}

// NewVariant creates an empty variant with the given name and opaque config.
func NewVariant(name string, config map[string]interface{}) *Variant {
	return &Variant{
		Name:          name,
		Config:        config,
		AssignedUsers: make(map[string]bool),
		Metrics:       make(map[string][]Observation),
		CreatedAt:     time.Now().UTC(),
	}
}

// Experiment is the unit of ownership: it exclusively owns its variants,
// and each variant exclusively owns its observation lists. There is no
// cross-experiment sharing.
type Experiment struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	TrafficSplit  float64 `json:"traffic_split"`
	TargetMetric  string  `json:"target_metric"`
	MinSampleSize int     `json:"minimum_sample_size"`
	Alpha         float64 `json:"significance_level"`

	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Variants is ordered by insertion: index 0 is the control arm,
	// index 1 the treatment arm.
	Variants []*Variant `json:"variants"`

	// Result is absent until the analyzer has run at stop time.
	Result *AnalysisResult `json:"result,omitempty"`
}

// Variant returns the named variant, or nil if absent.
func (e *Experiment) Variant(name string) *Variant {
	for _, v := range e.Variants {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// VariantNames returns the variant names in insertion order.
func (e *Experiment) VariantNames() []string {
	names := make([]string, 0, len(e.Variants))
	for _, v := range e.Variants {
		names = append(names, v.Name)
	}
	return names
}

// ConfidenceInterval bounds the mean difference at the configured level.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// AnalysisResult is the outcome of the two-sample significance analysis.
// It is computed once per stop and replaces any prior result.
//
// When Degenerate is true the input samples had zero pooled variance (or
// fewer than one degree of freedom); the statistical fields are zeroed and
// IsSignificant is false rather than propagating NaN/Inf.
type AnalysisResult struct {
	ControlVariant   string             `json:"control_variant"`
	TreatmentVariant string             `json:"treatment_variant"`
	ControlMean      float64            `json:"control_mean"`
	TreatmentMean    float64            `json:"treatment_mean"`
	MeanDifference   float64            `json:"mean_difference"`
	TStatistic       float64            `json:"t_statistic"`
	PValue           float64            `json:"p_value"`
	IsSignificant    bool               `json:"is_significant"`
	EffectSize       float64            `json:"effect_size"`
	ConfidenceLevel  float64            `json:"confidence_level"`
	Interval         ConfidenceInterval `json:"confidence_interval"`
	SampleSizes      map[string]int     `json:"sample_sizes"`
	Degenerate       bool               `json:"degenerate,omitempty"`
	AnalyzedAt       time.Time          `json:"analyzed_at"`
}

// ExperimentSummary is the rounded presentation projection of an experiment.
// Numeric fields are rounded to 4 decimal places. Pointer fields are nil
// (and omitted) when no analysis result exists, or when the value is
// undefined (improvement percentage with a zero control mean).
type ExperimentSummary struct {
	ExperimentName        string         `json:"experiment_name"`
	Status                Status         `json:"status"`
	Message               string         `json:"message,omitempty"`
	ControlMean           *float64       `json:"control_mean,omitempty"`
	TreatmentMean         *float64       `json:"treatment_mean,omitempty"`
	ImprovementPercentage *float64       `json:"improvement_percentage,omitempty"`
	IsSignificant         *bool          `json:"is_significant,omitempty"`
	PValue                *float64       `json:"p_value,omitempty"`
	EffectSize            *float64       `json:"effect_size,omitempty"`
	ConfidenceInterval    []float64      `json:"confidence_interval,omitempty"`
	SampleSizes           map[string]int `json:"sample_sizes,omitempty"`
	Degenerate            bool           `json:"degenerate,omitempty"`
}

// ExperimentListItem is the listing projection for dashboards and the
// list endpoint.
type ExperimentListItem struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Variants  []string   `json:"variants"`
	HasResult bool       `json:"has_result"`
}
