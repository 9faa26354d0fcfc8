// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package ingest carries assignment and observation traffic from the API
// to the DuckDB store through a Watermill pub/sub. The engine answers
// requests from memory; persistence rides this pipeline asynchronously so
// the hot path never waits on the database.
package ingest

import (
	"fmt"
	"time"
)

// Topics for the in-process pub/sub.
const (
	TopicAssignments  = "events.assignments"
	TopicObservations = "events.observations"
)

// ValidationError describes an event field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event validation failed: %s: %s", e.Field, e.Message)
}

// AssignmentEvent records a user's variant membership. Published on every
// assignment request, including repeats; the store deduplicates on its
// (experiment, user) primary key.
type AssignmentEvent struct {
	EventID      string    `json:"event_id"`
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id"`
	Variant      string    `json:"variant"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Validate checks required fields.
func (e *AssignmentEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.ExperimentID == "" {
		return &ValidationError{Field: "experiment_id", Message: "required"}
	}
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "required"}
	}
	if e.Variant == "" {
		return &ValidationError{Field: "variant", Message: "required"}
	}
	return nil
}

// ObservationEvent records one metric observation for persistence.
type ObservationEvent struct {
	EventID      string    `json:"event_id"`
	ExperimentID string    `json:"experiment_id"`
	Variant      string    `json:"variant"`
	UserID       string    `json:"user_id"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Validate checks required fields. Zero values are legitimate
// observations, so Value is unchecked.
func (e *ObservationEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.ExperimentID == "" {
		return &ValidationError{Field: "experiment_id", Message: "required"}
	}
	if e.Variant == "" {
		return &ValidationError{Field: "variant", Message: "required"}
	}
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "required"}
	}
	if e.Metric == "" {
		return &ValidationError{Field: "metric", Message: "required"}
	}
	return nil
}
