// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tomtom215/bifurcus/internal/models"
)

// analyze runs the pooled-variance two-sample t-test on the experiment's
// target metric, control arm against treatment arm. Returns nil when
// either arm has no observations for the metric: no result is stored
// rather than a vacuous one.
//
// Re-running on the same data is idempotent; the caller overwrites any
// prior result. The caller must hold the experiment's entry lock so the
// observation lists form a consistent snapshot.
//
// The p-value and the confidence interval both come from the Student's t
// distribution at n1+n2-2 degrees of freedom, so the test and the interval
// agree on one distribution.
func analyze(exp *models.Experiment) *models.AnalysisResult {
	control, treatment := exp.Variants[0], exp.Variants[1]
	controlVals := observationValues(control.Metrics[exp.TargetMetric])
	treatmentVals := observationValues(treatment.Metrics[exp.TargetMetric])

	if len(controlVals) == 0 || len(treatmentVals) == 0 {
		return nil
	}

	n1, n2 := float64(len(controlVals)), float64(len(treatmentVals))
	controlMean := stat.Mean(controlVals, nil)
	treatmentMean := stat.Mean(treatmentVals, nil)

	result := &models.AnalysisResult{
		ControlVariant:   control.Name,
		TreatmentVariant: treatment.Name,
		ControlMean:      controlMean,
		TreatmentMean:    treatmentMean,
		MeanDifference:   treatmentMean - controlMean,
		ConfidenceLevel:  1 - exp.Alpha,
		SampleSizes: map[string]int{
			control.Name:   len(controlVals),
			treatment.Name: len(treatmentVals),
		},
		AnalyzedAt: time.Now().UTC(),
	}

	df := n1 + n2 - 2
	pooledStd := math.Sqrt(pooledVariance(controlVals, treatmentVals, df))
	if df < 1 || pooledStd == 0 {
		// Zero variance or a single observation per arm: the t statistic
		// is undefined. Flag it instead of storing NaN/Inf.
		result.Degenerate = true
		return result
	}

	se := pooledStd * math.Sqrt(1/n1+1/n2)
	tStat := (controlMean - treatmentMean) / se

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue := 2 * dist.CDF(-math.Abs(tStat))
	tCrit := dist.Quantile(1 - exp.Alpha/2)

	result.TStatistic = tStat
	result.PValue = pValue
	result.IsSignificant = pValue < exp.Alpha
	// Signed: a treatment that hurts the metric reports a negative effect.
	result.EffectSize = (treatmentMean - controlMean) / pooledStd
	result.Interval = models.ConfidenceInterval{
		Lower: result.MeanDifference - tCrit*se,
		Upper: result.MeanDifference + tCrit*se,
	}

	return result
}

// pooledVariance computes the weighted Bessel-corrected variance of the
// two samples. A single-element sample contributes zero, matching its
// zero weight.
func pooledVariance(a, b []float64, df float64) float64 {
	if df < 1 {
		return 0
	}
	varA, varB := sampleVariance(a), sampleVariance(b)
	nA, nB := float64(len(a)), float64(len(b))
	return ((nA-1)*varA + (nB-1)*varB) / df
}

func sampleVariance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	return stat.Variance(vals, nil)
}

func observationValues(obs []models.Observation) []float64 {
	vals := make([]float64, len(obs))
	for i, o := range obs {
		vals[i] = o.Value
	}
	return vals
}
