// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/bifurcus/internal/models"
)

func TestExportJSONRoundTrip(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)
	user := "u1"
	_, _ = e.Assign(id, user)
	_ = e.Record(id, user, "ctr", 0.42)
	_, _ = e.Stop(id)

	data, err := e.ExportJSON(id)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var decoded models.Experiment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != id {
		t.Errorf("decoded ID = %q, want %q", decoded.ID, id)
	}
	if decoded.Status != models.StatusCompleted {
		t.Errorf("decoded status = %q, want completed", decoded.Status)
	}
	if len(decoded.Variants) != 2 {
		t.Fatalf("decoded %d variants, want 2", len(decoded.Variants))
	}
	total := 0
	for _, v := range decoded.Variants {
		total += len(v.Metrics["ctr"])
	}
	if total != 1 {
		t.Errorf("decoded %d ctr observations, want 1", total)
	}
}

func TestExportCSV(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	const users = 20
	recorded := 0
	for i := 0; i < users; i++ {
		user := fmt.Sprintf("user-%d", i)
		_, _ = e.Assign(id, user)
		if err := e.Record(id, user, "ctr", 0.1+float64(i)*0.01); err == nil {
			recorded++
		}
	}
	_ = e.Record(id, "user-0", "time_on_page", 33.5)
	recorded++

	var buf bytes.Buffer
	if err := e.ExportCSV(id, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != recorded+1 {
		t.Fatalf("csv has %d rows, want header + %d", len(rows), recorded)
	}

	header := rows[0]
	want := []string{"variant", "user_id", "metric", "value", "timestamp"}
	for i, col := range want {
		if header[i] != col {
			t.Errorf("header[%d] = %q, want %q", i, header[i], col)
		}
	}

	for i, row := range rows[1:] {
		if row[0] != "control" && row[0] != "treatment" {
			t.Errorf("row %d: unknown variant %q", i, row[0])
		}
		if row[2] != "ctr" && row[2] != "time_on_page" {
			t.Errorf("row %d: unknown metric %q", i, row[2])
		}
	}
}

func TestExportUnknownExperiment(t *testing.T) {
	e := newTestEngine()
	if _, err := e.ExportJSON("missing"); err == nil {
		t.Error("ExportJSON(missing) succeeded")
	}
	var buf bytes.Buffer
	if err := e.ExportCSV("missing", &buf); err == nil {
		t.Error("ExportCSV(missing) succeeded")
	}
}

func TestSummaryRounding(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.123456, 0.1235},
		{0.12344, 0.1234},
		{-0.00005, -0.0001},
		{3.0, 3.0},
	}
	for _, tt := range tests {
		if got := round4(tt.in); got != tt.want {
			t.Errorf("round4(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSummaryImprovementGuard(t *testing.T) {
	e := newTestEngine()
	id := newRunningExperiment(t, e, 0.5)

	// Drive the control mean to exactly zero.
	for i := 0; i < 200; i++ {
		user := fmt.Sprintf("user-%d", i)
		variant, _ := e.Assign(id, user)
		value := 0.0
		if variant == "treatment" {
			value = 0.2 + float64(i%3)*0.01
		}
		_ = e.Record(id, user, "ctr", value)
	}
	_, _ = e.Stop(id)

	summary, err := e.Summary(id)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.ControlMean == nil || *summary.ControlMean != 0 {
		t.Fatalf("control mean = %v, want 0", summary.ControlMean)
	}
	if summary.ImprovementPercentage != nil {
		t.Errorf("improvement = %v, want omitted for zero control mean", *summary.ImprovementPercentage)
	}
}
