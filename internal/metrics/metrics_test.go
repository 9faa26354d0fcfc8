// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAssignment(t *testing.T) {
	before := testutil.ToFloat64(AssignmentsTotal.WithLabelValues("exp-m1", "control"))
	RecordAssignment("exp-m1", "control")
	after := testutil.ToFloat64(AssignmentsTotal.WithLabelValues("exp-m1", "control"))
	if after != before+1 {
		t.Errorf("assignments counter = %v, want %v", after, before+1)
	}
}

func TestRecordObservation(t *testing.T) {
	before := testutil.ToFloat64(ObservationsTotal.WithLabelValues("exp-m2", "ctr"))
	RecordObservation("exp-m2", "ctr")
	RecordObservation("exp-m2", "ctr")
	after := testutil.ToFloat64(ObservationsTotal.WithLabelValues("exp-m2", "ctr"))
	if after != before+2 {
		t.Errorf("observations counter = %v, want %v", after, before+2)
	}
}

func TestRecordAnalysisOutcomes(t *testing.T) {
	for _, outcome := range []string{"significant", "not_significant", "degenerate", "skipped"} {
		before := testutil.ToFloat64(AnalysesTotal.WithLabelValues(outcome))
		RecordAnalysis(outcome)
		after := testutil.ToFloat64(AnalysesTotal.WithLabelValues(outcome))
		if after != before+1 {
			t.Errorf("analyses[%s] = %v, want %v", outcome, after, before+1)
		}
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("active requests = %v, want %v", got, base+2)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active requests = %v, want %v after decrement", got, base)
	}
}

func TestRecordDBWriteCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DBWriteErrors.WithLabelValues("observations"))

	RecordDBWrite("observations", 5*time.Millisecond, nil)
	if got := testutil.ToFloat64(DBWriteErrors.WithLabelValues("observations")); got != before {
		t.Errorf("error counter moved on success: %v", got)
	}

	RecordDBWrite("observations", 5*time.Millisecond, errors.New("io error"))
	if got := testutil.ToFloat64(DBWriteErrors.WithLabelValues("observations")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("duckdb", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("duckdb")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}
	SetCircuitBreakerState("duckdb", 0)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("duckdb")); got != 0 {
		t.Errorf("breaker state = %v, want 0", got)
	}
}
