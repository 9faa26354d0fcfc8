// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"time"

	"github.com/tomtom215/bifurcus/internal/models"
)

// Record appends a metric observation for an assigned user. The metric
// name is open: any name is accepted and creates its list on first use.
// Observations are append-only; repeated values from the same user are
// all kept.
//
// Returns ErrNotFound for an unknown experiment, ErrInvalidState when the
// experiment is not running, and ErrUnassigned when the user has no
// variant membership. Membership is resolved by scanning the two variants
// in insertion order, first match wins.
func (e *Engine) Record(experimentID, userID, metricName string, value float64) error {
	ent, err := e.entry(experimentID)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.exp.Status != models.StatusRunning {
		return ErrInvalidState
	}

	for _, v := range ent.exp.Variants {
		if v.AssignedUsers[userID] {
			v.Metrics[metricName] = append(v.Metrics[metricName], models.Observation{
				UserID:    userID,
				Value:     value,
				Timestamp: time.Now().UTC(),
			})
			return nil
		}
	}

	return ErrUnassigned
}
