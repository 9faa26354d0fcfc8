// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"math"

	"github.com/tomtom215/bifurcus/internal/models"
)

// Summary returns the rounded presentation projection of an experiment.
// Without an analysis result the summary carries only the name, status,
// and an explanatory message; all statistical fields are omitted.
func (e *Engine) Summary(experimentID string) (*models.ExperimentSummary, error) {
	ent, err := e.entry(experimentID)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	summary := &models.ExperimentSummary{
		ExperimentName: ent.exp.Name,
		Status:         ent.exp.Status,
	}

	r := ent.exp.Result
	if r == nil {
		summary.Message = "no analysis results available"
		return summary, nil
	}

	summary.ControlMean = round4p(r.ControlMean)
	summary.TreatmentMean = round4p(r.TreatmentMean)
	summary.IsSignificant = boolPtr(r.IsSignificant)
	summary.PValue = round4p(r.PValue)
	summary.EffectSize = round4p(r.EffectSize)
	summary.ConfidenceInterval = []float64{round4(r.Interval.Lower), round4(r.Interval.Upper)}
	summary.Degenerate = r.Degenerate

	summary.SampleSizes = make(map[string]int, len(r.SampleSizes))
	for k, n := range r.SampleSizes {
		summary.SampleSizes[k] = n
	}

	// Relative improvement is undefined against a zero control mean;
	// the field is omitted rather than reporting infinity.
	if r.ControlMean != 0 {
		summary.ImprovementPercentage = round4p((r.TreatmentMean - r.ControlMean) / r.ControlMean * 100)
	}

	return summary, nil
}

// round4 rounds to 4 decimal places, the presentation precision for all
// summary statistics.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round4p(v float64) *float64 {
	r := round4(v)
	return &r
}

func boolPtr(b bool) *bool {
	return &b
}
