// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tomtom215/bifurcus/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultParams())
}

// newRunningExperiment creates a two-variant experiment in running state.
func newRunningExperiment(t *testing.T, e *Engine, split float64) string {
	t.Helper()

	id, err := e.Create(CreateParams{
		Name:         "headline test",
		TrafficSplit: split,
		TargetMetric: "ctr",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.AddVariant(id, "control", map[string]interface{}{"layout": "classic"}); err != nil {
		t.Fatalf("AddVariant(control): %v", err)
	}
	if err := e.AddVariant(id, "treatment", map[string]interface{}{"layout": "bold"}); err != nil {
		t.Fatalf("AddVariant(treatment): %v", err)
	}
	if err := e.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return id
}

func TestCreateAppliesDefaults(t *testing.T) {
	e := newTestEngine()
	id, err := e.Create(CreateParams{Name: "exp", TrafficSplit: 0.5, TargetMetric: "ctr"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	exp, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if exp.Status != models.StatusDraft {
		t.Errorf("Status = %q, want draft", exp.Status)
	}
	if exp.Alpha != 0.05 {
		t.Errorf("Alpha = %v, want default 0.05", exp.Alpha)
	}
	if exp.MinSampleSize != 100 {
		t.Errorf("MinSampleSize = %v, want default 100", exp.MinSampleSize)
	}
	if len(exp.Variants) != 0 {
		t.Errorf("new experiment has %d variants, want 0", len(exp.Variants))
	}
}

func TestCreateRejectsBadTrafficSplit(t *testing.T) {
	e := newTestEngine()
	for _, split := range []float64{-0.1, 1.1, 2} {
		if _, err := e.Create(CreateParams{Name: "bad", TrafficSplit: split}); err == nil {
			t.Errorf("Create with split %v succeeded, want error", split)
		}
	}
}

func TestVariantCapAndDuplicates(t *testing.T) {
	e := newTestEngine()
	id, _ := e.Create(CreateParams{Name: "exp", TrafficSplit: 0.5, TargetMetric: "ctr"})

	if err := e.AddVariant(id, "control", nil); err != nil {
		t.Fatalf("first AddVariant: %v", err)
	}
	if err := e.AddVariant(id, "control", nil); !errors.Is(err, ErrDuplicateVariant) {
		t.Errorf("duplicate name: err = %v, want ErrDuplicateVariant", err)
	}
	if err := e.AddVariant(id, "treatment", nil); err != nil {
		t.Fatalf("second AddVariant: %v", err)
	}
	if err := e.AddVariant(id, "third", nil); !errors.Is(err, ErrVariantLimit) {
		t.Errorf("third variant: err = %v, want ErrVariantLimit", err)
	}
	if err := e.AddVariant("missing", "v", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown experiment: err = %v, want ErrNotFound", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	e := newTestEngine()
	id, _ := e.Create(CreateParams{Name: "exp", TrafficSplit: 0.5, TargetMetric: "ctr"})

	// Cannot start without exactly two variants.
	if err := e.Start(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start with 0 variants: err = %v, want ErrInvalidState", err)
	}
	_ = e.AddVariant(id, "control", nil)
	if err := e.Start(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start with 1 variant: err = %v, want ErrInvalidState", err)
	}

	// Cannot stop a draft.
	if _, err := e.Stop(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop from draft: err = %v, want ErrInvalidState", err)
	}

	_ = e.AddVariant(id, "treatment", nil)
	if err := e.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	exp, _ := e.Get(id)
	if exp.Status != models.StatusRunning || exp.StartedAt == nil {
		t.Errorf("after Start: status=%q startedAt=%v", exp.Status, exp.StartedAt)
	}

	// No double start, no late variants.
	if err := e.Start(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start: err = %v, want ErrInvalidState", err)
	}
	if err := e.AddVariant(id, "late", nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("AddVariant while running: err = %v, want ErrInvalidState", err)
	}

	if _, err := e.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	exp, _ = e.Get(id)
	if exp.Status != models.StatusCompleted || exp.EndedAt == nil {
		t.Errorf("after Stop: status=%q endedAt=%v", exp.Status, exp.EndedAt)
	}

	// Terminal state: no restart, no second stop.
	if err := e.Start(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start after Stop: err = %v, want ErrInvalidState", err)
	}
	if _, err := e.Stop(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Stop: err = %v, want ErrInvalidState", err)
	}
}

func TestAssignDeterministic(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	for i := 0; i < 50; i++ {
		user := fmt.Sprintf("user-%d", i)
		first, ok := e.Assign(id, user)
		if !ok {
			t.Fatalf("Assign(%s) not ok", user)
		}
		for rep := 0; rep < 5; rep++ {
			again, ok := e.Assign(id, user)
			if !ok || again != first {
				t.Fatalf("Assign(%s) unstable: %q then %q", user, first, again)
			}
		}
	}

	// Repeated assignment does not duplicate membership.
	exp, _ := e.Get(id)
	total := len(exp.Variants[0].AssignedUsers) + len(exp.Variants[1].AssignedUsers)
	if total != 50 {
		t.Errorf("total memberships = %d, want 50", total)
	}
}

func TestAssignRequiresRunning(t *testing.T) {
	e := newTestEngine()
	id, _ := e.Create(CreateParams{Name: "exp", TrafficSplit: 0.5, TargetMetric: "ctr"})
	_ = e.AddVariant(id, "control", nil)
	_ = e.AddVariant(id, "treatment", nil)

	if _, ok := e.Assign(id, "u1"); ok {
		t.Error("Assign succeeded on draft experiment")
	}
	if _, ok := e.Assign("missing", "u1"); ok {
		t.Error("Assign succeeded on unknown experiment")
	}

	_ = e.Start(id)
	if _, ok := e.Assign(id, "u1"); !ok {
		t.Error("Assign failed on running experiment")
	}

	_, _ = e.Stop(id)
	if _, ok := e.Assign(id, "u2"); ok {
		t.Error("Assign succeeded on completed experiment")
	}
}

func TestAssignConvergesToSplit(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	const users = 10000
	control := 0
	for i := 0; i < users; i++ {
		variant, ok := e.Assign(id, fmt.Sprintf("user-%d", i))
		if !ok {
			t.Fatalf("Assign failed for user-%d", i)
		}
		if variant == "control" {
			control++
		}
	}

	fraction := float64(control) / users
	if fraction < 0.47 || fraction > 0.53 {
		t.Errorf("control fraction = %.4f, want within [0.47, 0.53]", fraction)
	}
}

func TestAssignBoundarySplits(t *testing.T) {
	e := newTestEngine()

	allControl := newRunningExperiment(t, e, 1.0)
	allTreatment := newRunningExperiment(t, e, 0.0)

	for i := 0; i < 200; i++ {
		user := fmt.Sprintf("user-%d", i)
		if v, _ := e.Assign(allControl, user); v != "control" {
			t.Fatalf("split 1.0 routed %s to %q", user, v)
		}
		if v, _ := e.Assign(allTreatment, user); v != "treatment" {
			t.Fatalf("split 0.0 routed %s to %q", user, v)
		}
	}
}

func TestAssignIndependentAcrossExperiments(t *testing.T) {
	e := newTestEngine()
	first := newRunningExperiment(t, e, 0.5)
	second := newRunningExperiment(t, e, 0.5)

	differ := 0
	for i := 0; i < 1000; i++ {
		user := fmt.Sprintf("user-%d", i)
		v1, _ := e.Assign(first, user)
		v2, _ := e.Assign(second, user)
		if v1 != v2 {
			differ++
		}
	}

	// Independent hashing makes identical routing across two experiments
	// for 1000 users essentially impossible.
	if differ == 0 {
		t.Error("assignments identical across experiments; hashing not experiment-scoped")
	}
}

func TestRecordRequiresMembership(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	if err := e.Record("missing", "u1", "ctr", 0.1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown experiment: err = %v, want ErrNotFound", err)
	}
	if err := e.Record(id, "stranger", "ctr", 0.1); !errors.Is(err, ErrUnassigned) {
		t.Errorf("unassigned user: err = %v, want ErrUnassigned", err)
	}

	variant, _ := e.Assign(id, "u1")
	if err := e.Record(id, "u1", "ctr", 0.1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Duplicate values are appended, never deduplicated.
	if err := e.Record(id, "u1", "ctr", 0.1); err != nil {
		t.Fatalf("second Record: %v", err)
	}
	// Open metric namespace: unseen names create their list on first use.
	if err := e.Record(id, "u1", "time_on_page", 42.0); err != nil {
		t.Fatalf("Record new metric: %v", err)
	}

	exp, _ := e.Get(id)
	v := exp.Variant(variant)
	if got := len(v.Metrics["ctr"]); got != 2 {
		t.Errorf("ctr observations = %d, want 2", got)
	}
	if got := len(v.Metrics["time_on_page"]); got != 1 {
		t.Errorf("time_on_page observations = %d, want 1", got)
	}

	_, _ = e.Stop(id)
	if err := e.Record(id, "u1", "ctr", 0.1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Record after stop: err = %v, want ErrInvalidState", err)
	}
}

func TestStopSkipsAnalysisWithoutObservations(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	// Observations only in one arm.
	for i := 0; ; i++ {
		user := fmt.Sprintf("user-%d", i)
		if v, _ := e.Assign(id, user); v == "control" {
			_ = e.Record(id, user, "ctr", 0.1)
			break
		}
	}

	result, err := e.Stop(id)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil when one arm has no observations", result)
	}

	stored, err := e.Result(id)
	if err != nil || stored != nil {
		t.Errorf("Result = (%+v, %v), want (nil, nil)", stored, err)
	}

	summary, err := e.Summary(id)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Message == "" || summary.PValue != nil {
		t.Errorf("summary without result should carry a message and no stats: %+v", summary)
	}
}

func TestEndToEndSignificantExperiment(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	// Deterministic engagement: treatment users convert visibly more.
	const users = 1000
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("user-%d", i)
		variant, ok := e.Assign(id, user)
		if !ok {
			t.Fatalf("Assign failed for %s", user)
		}
		value := 0.10 + float64(i%7)*0.01
		if variant == "treatment" {
			value += 0.05
		}
		if err := e.Record(id, user, "ctr", value); err != nil {
			t.Fatalf("Record(%s): %v", user, err)
		}
	}

	result, err := e.Stop(id)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result == nil {
		t.Fatal("expected analysis result")
	}
	if !result.IsSignificant {
		t.Errorf("expected significance, got p = %v", result.PValue)
	}
	if result.TreatmentMean <= result.ControlMean {
		t.Errorf("treatment mean %v not above control mean %v", result.TreatmentMean, result.ControlMean)
	}
	if result.SampleSizes["control"]+result.SampleSizes["treatment"] != users {
		t.Errorf("sample sizes %v do not sum to %d", result.SampleSizes, users)
	}

	summary, err := e.Summary(id)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.IsSignificant == nil || !*summary.IsSignificant {
		t.Errorf("summary significance = %v, want true", summary.IsSignificant)
	}
	if summary.ImprovementPercentage == nil || *summary.ImprovementPercentage <= 0 {
		t.Errorf("improvement percentage = %v, want positive", summary.ImprovementPercentage)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)
	_, _ = e.Assign(id, "u1")

	snap, _ := e.Get(id)
	snap.Variants[0].AssignedUsers["tampered"] = true
	snap.Variants[0].Metrics["fake"] = []models.Observation{{UserID: "x"}}

	fresh, _ := e.Get(id)
	if fresh.Variants[0].AssignedUsers["tampered"] {
		t.Error("mutating a snapshot leaked into engine state")
	}
	if _, ok := fresh.Variants[0].Metrics["fake"]; ok {
		t.Error("mutating snapshot metrics leaked into engine state")
	}
}

func TestListNewestFirst(t *testing.T) {
	e := newTestEngine()
	ids := make([]string, 3)
	for i := range ids {
		ids[i], _ = e.Create(CreateParams{Name: fmt.Sprintf("exp-%d", i), TrafficSplit: 0.5, TargetMetric: "ctr"})
	}

	items := e.List()
	if len(items) != 3 {
		t.Fatalf("List returned %d items, want 3", len(items))
	}
	for i := 0; i < len(items)-1; i++ {
		if items[i].CreatedAt.Before(items[i+1].CreatedAt) {
			t.Errorf("List not newest-first at index %d", i)
		}
	}
}

func TestRestoreReplacesState(t *testing.T) {
	e := newTestEngine()
	_, _ = e.Create(CreateParams{Name: "old", TrafficSplit: 0.5, TargetMetric: "ctr"})

	restored := &models.Experiment{
		ID:           "persisted-1",
		Name:         "restored",
		TrafficSplit: 0.5,
		TargetMetric: "ctr",
		Status:       models.StatusRunning,
		Variants: []*models.Variant{
			models.NewVariant("control", nil),
			models.NewVariant("treatment", nil),
		},
	}
	e.Restore([]*models.Experiment{restored})

	if e.Count() != 1 {
		t.Fatalf("Count = %d after Restore, want 1", e.Count())
	}
	if _, ok := e.Assign("persisted-1", "u1"); !ok {
		t.Error("restored running experiment rejected assignment")
	}
}

func TestConcurrentAssignAndRecord(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	const workers = 8
	const perWorker = 200
	done := make(chan struct{}, workers)

	for w := 0; w < workers; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWorker; i++ {
				user := fmt.Sprintf("w%d-user-%d", w, i)
				if _, ok := e.Assign(id, user); !ok {
					t.Errorf("Assign(%s) failed", user)
					return
				}
				if err := e.Record(id, user, "ctr", 0.1); err != nil {
					t.Errorf("Record(%s): %v", user, err)
					return
				}
			}
		}(w)
	}
	for w := 0; w < workers; w++ {
		<-done
	}

	exp, _ := e.Get(id)
	total := 0
	for _, v := range exp.Variants {
		total += len(v.Metrics["ctr"])
	}
	if total != workers*perWorker {
		t.Errorf("total observations = %d, want %d", total, workers*perWorker)
	}
}
