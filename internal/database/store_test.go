// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/bifurcus/internal/config"
	"github.com/tomtom215/bifurcus/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{
		Path:                   ":memory:",
		MaxMemory:              "256MB",
		Threads:                2,
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func seedExperiment(t *testing.T, db *DB, ctx context.Context) *models.Experiment {
	t.Helper()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := &models.Experiment{
		ID:            "exp-db-1",
		Name:          "headline test",
		Description:   "bold vs classic headlines",
		TrafficSplit:  0.5,
		TargetMetric:  "ctr",
		MinSampleSize: 100,
		Alpha:         0.05,
		Status:        models.StatusRunning,
		CreatedAt:     started.Add(-time.Hour),
		StartedAt:     &started,
	}
	if err := db.SaveExperiment(ctx, exp); err != nil {
		t.Fatalf("SaveExperiment: %v", err)
	}

	control := models.NewVariant("control", map[string]interface{}{"layout": "classic"})
	treatment := models.NewVariant("treatment", map[string]interface{}{"layout": "bold"})
	if err := db.SaveVariant(ctx, exp.ID, 0, control); err != nil {
		t.Fatalf("SaveVariant(control): %v", err)
	}
	if err := db.SaveVariant(ctx, exp.ID, 1, treatment); err != nil {
		t.Fatalf("SaveVariant(treatment): %v", err)
	}
	return exp
}

func TestSchemaInitializes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("SchemaVersion = %d, want 0 with no migrations", version)
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	exp := seedExperiment(t, db, ctx)

	at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if err := db.SaveAssignment(ctx, exp.ID, "u1", "control", at); err != nil {
		t.Fatalf("SaveAssignment: %v", err)
	}
	if err := db.SaveAssignment(ctx, exp.ID, "u2", "treatment", at); err != nil {
		t.Fatalf("SaveAssignment: %v", err)
	}
	// Replayed assignment events are ignored, not duplicated.
	if err := db.SaveAssignment(ctx, exp.ID, "u1", "control", at.Add(time.Minute)); err != nil {
		t.Fatalf("replayed SaveAssignment: %v", err)
	}

	obs := models.Observation{UserID: "u1", Value: 0.42, Timestamp: at}
	if err := db.SaveObservation(ctx, exp.ID, "control", "ctr", obs); err != nil {
		t.Fatalf("SaveObservation: %v", err)
	}

	loaded, err := db.LoadExperiments(ctx)
	if err != nil {
		t.Fatalf("LoadExperiments: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d experiments, want 1", len(loaded))
	}

	got := loaded[0]
	if got.ID != exp.ID || got.Name != exp.Name || got.Status != models.StatusRunning {
		t.Errorf("experiment header mismatch: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(*exp.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, exp.StartedAt)
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}

	if len(got.Variants) != 2 || got.Variants[0].Name != "control" || got.Variants[1].Name != "treatment" {
		t.Fatalf("variants = %v, want control then treatment", got.VariantNames())
	}
	if got.Variants[0].Config["layout"] != "classic" {
		t.Errorf("control config = %v", got.Variants[0].Config)
	}

	if !got.Variants[0].AssignedUsers["u1"] || !got.Variants[1].AssignedUsers["u2"] {
		t.Errorf("memberships not restored: %v / %v",
			got.Variants[0].AssignedUsers, got.Variants[1].AssignedUsers)
	}
	if len(got.Variants[0].AssignedUsers) != 1 {
		t.Errorf("control memberships = %d, want 1 (replay deduplicated)",
			len(got.Variants[0].AssignedUsers))
	}

	ctrObs := got.Variants[0].Metrics["ctr"]
	if len(ctrObs) != 1 || ctrObs[0].UserID != "u1" || ctrObs[0].Value != 0.42 {
		t.Errorf("observations = %+v", ctrObs)
	}
}

func TestAnalysisResultRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	exp := seedExperiment(t, db, ctx)

	result := &models.AnalysisResult{
		ControlVariant:   "control",
		TreatmentVariant: "treatment",
		ControlMean:      0.12,
		TreatmentMean:    0.18,
		MeanDifference:   0.06,
		TStatistic:       -6.0,
		PValue:           0.00032,
		IsSignificant:    true,
		EffectSize:       3.79,
		ConfidenceLevel:  0.95,
		Interval:         models.ConfidenceInterval{Lower: 0.0369, Upper: 0.0831},
		SampleSizes:      map[string]int{"control": 5, "treatment": 5},
		AnalyzedAt:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	if err := db.SaveAnalysisResult(ctx, exp.ID, result); err != nil {
		t.Fatalf("SaveAnalysisResult: %v", err)
	}
	// Re-running an analysis overwrites the prior row.
	result.PValue = 0.00033
	if err := db.SaveAnalysisResult(ctx, exp.ID, result); err != nil {
		t.Fatalf("second SaveAnalysisResult: %v", err)
	}

	loaded, err := db.LoadExperiments(ctx)
	if err != nil {
		t.Fatalf("LoadExperiments: %v", err)
	}
	r := loaded[0].Result
	if r == nil {
		t.Fatal("analysis result not restored")
	}
	if r.PValue != 0.00033 {
		t.Errorf("PValue = %v, want overwritten 0.00033", r.PValue)
	}
	if !r.IsSignificant || r.SampleSizes["treatment"] != 5 {
		t.Errorf("result mismatch: %+v", r)
	}
}

func TestSaveExperimentUpsertsStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	exp := seedExperiment(t, db, ctx)

	ended := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	exp.Status = models.StatusCompleted
	exp.EndedAt = &ended
	if err := db.SaveExperiment(ctx, exp); err != nil {
		t.Fatalf("SaveExperiment upsert: %v", err)
	}

	loaded, err := db.LoadExperiments(ctx)
	if err != nil {
		t.Fatalf("LoadExperiments: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d experiments after upsert, want 1", len(loaded))
	}
	if loaded[0].Status != models.StatusCompleted || loaded[0].EndedAt == nil {
		t.Errorf("status = %v, endedAt = %v", loaded[0].Status, loaded[0].EndedAt)
	}
}

func TestCountObservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	exp := seedExperiment(t, db, ctx)

	for i := 0; i < 3; i++ {
		obs := models.Observation{UserID: "u1", Value: float64(i), Timestamp: time.Now().UTC()}
		if err := db.SaveObservation(ctx, exp.ID, "control", "ctr", obs); err != nil {
			t.Fatalf("SaveObservation: %v", err)
		}
	}

	n, err := db.CountObservations(ctx, exp.ID)
	if err != nil {
		t.Fatalf("CountObservations: %v", err)
	}
	if n != 3 {
		t.Errorf("CountObservations = %d, want 3", n)
	}
}

func TestBreakerStorePassesThrough(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewBreakerStore(db)

	exp := &models.Experiment{
		ID:            "exp-breaker",
		Name:          "breaker test",
		TrafficSplit:  0.5,
		TargetMetric:  "ctr",
		MinSampleSize: 10,
		Alpha:         0.05,
		Status:        models.StatusDraft,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.SaveExperiment(ctx, exp); err != nil {
		t.Fatalf("SaveExperiment through breaker: %v", err)
	}

	loaded, err := db.LoadExperiments(ctx)
	if err != nil {
		t.Fatalf("LoadExperiments: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "exp-breaker" {
		t.Errorf("breaker write not persisted: %+v", loaded)
	}
}
