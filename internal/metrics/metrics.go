// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package metrics provides Prometheus instrumentation for the experiment
// engine, the HTTP API, the ingest pipeline, and the DuckDB store. All
// collectors are registered with the default registry via promauto and
// exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Experiment engine metrics
	ExperimentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiments_created_total",
			Help: "Total number of experiments created",
		},
	)

	ExperimentsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "experiments_active",
			Help: "Current number of experiments in running state",
		},
	)

	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignments_total",
			Help: "Total number of variant assignments served",
		},
		[]string{"experiment", "variant"},
	)

	AssignmentsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assignments_rejected_total",
			Help: "Total number of assignment requests against unknown or non-running experiments",
		},
	)

	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observations_total",
			Help: "Total number of metric observations recorded",
		},
		[]string{"experiment", "metric"},
	)

	ObservationsUnassigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "observations_unassigned_total",
			Help: "Total number of observations dropped because the user had no variant membership",
		},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of statistical analyses by outcome",
		},
		[]string{"outcome"}, // "significant", "not_significant", "degenerate", "skipped"
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Ingest pipeline metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_published_total",
			Help: "Total number of events published to the ingest pipeline",
		},
		[]string{"topic"},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_processed_total",
			Help: "Total number of events successfully persisted",
		},
		[]string{"topic"},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_failed_total",
			Help: "Total number of events that exhausted retries",
		},
		[]string{"topic"},
	)

	IngestHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_handler_duration_seconds",
			Help:    "Duration of ingest handler executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// Database metrics
	DBWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_write_duration_seconds",
			Help:    "Duration of DuckDB write operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	DBWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_write_errors_total",
			Help: "Total number of DuckDB write errors",
		},
		[]string{"table"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)
)

// RecordAssignment records a served assignment.
func RecordAssignment(experimentID, variant string) {
	AssignmentsTotal.WithLabelValues(experimentID, variant).Inc()
}

// RecordObservation records a persisted metric observation.
func RecordObservation(experimentID, metric string) {
	ObservationsTotal.WithLabelValues(experimentID, metric).Inc()
}

// RecordAnalysis records an analysis outcome: "significant",
// "not_significant", "degenerate", or "skipped".
func RecordAnalysis(outcome string) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active-request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDBWrite records a write's duration and failure state.
func RecordDBWrite(table string, duration time.Duration, err error) {
	DBWriteDuration.WithLabelValues(table).Observe(duration.Seconds())
	if err != nil {
		DBWriteErrors.WithLabelValues(table).Inc()
	}
}

// SetCircuitBreakerState publishes a breaker state change.
func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
