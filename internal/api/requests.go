// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package api

// CreateExperimentRequest is the request body for POST /experiments.
// MinimumSampleSize and SignificanceLevel fall back to the configured
// engine defaults when omitted.
type CreateExperimentRequest struct {
	Name              string  `json:"name" validate:"required,min=1,max=200"`
	Description       string  `json:"description" validate:"max=2000"`
	TrafficSplit      float64 `json:"traffic_split" validate:"gte=0,lte=1"`
	TargetMetric      string  `json:"target_metric" validate:"required,min=1,max=100"`
	MinimumSampleSize int     `json:"minimum_sample_size" validate:"omitempty,gt=0"`
	SignificanceLevel float64 `json:"significance_level" validate:"omitempty,gt=0,lt=1"`
}

// AddVariantRequest is the request body for POST /experiments/{id}/variants.
// Config is an opaque payload handed back verbatim to assignment clients.
type AddVariantRequest struct {
	Name   string                 `json:"name" validate:"required,min=1,max=100"`
	Config map[string]interface{} `json:"config"`
}

// AssignRequest is the request body for POST /experiments/{id}/assignments.
type AssignRequest struct {
	UserID string `json:"user_id" validate:"required,min=1,max=200"`
}

// RecordObservationRequest is the request body for
// POST /experiments/{id}/observations. Zero is a legitimate metric value,
// so Value carries no validation.
type RecordObservationRequest struct {
	UserID string  `json:"user_id" validate:"required,min=1,max=200"`
	Metric string  `json:"metric" validate:"required,min=1,max=100"`
	Value  float64 `json:"value"`
}
