// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/tomtom215/bifurcus/internal/models"
)

// Assign routes a user to a variant of a running experiment and records
// the membership. The result is deterministic per (experiment, user) pair
// and independent across experiments.
//
// ok is false, without error, when the experiment is unknown or not
// running: callers on the traffic path treat a missing assignment as
// routine, never exceptional.
func (e *Engine) Assign(experimentID, userID string) (string, bool) {
	ent, err := e.entry(experimentID)
	if err != nil {
		return "", false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.exp.Status != models.StatusRunning {
		return "", false
	}

	variant := ent.exp.Variants[variantIndex(experimentID, userID, ent.exp.TrafficSplit)]
	variant.AssignedUsers[userID] = true
	return variant.Name, true
}

// variantIndex buckets a user deterministically: SHA-256 over
// "experimentID:userID", first 8 bytes as a big-endian uint64, modulo 100.
// Buckets strictly below split*100 go to the control arm (index 0), the
// rest to treatment (index 1). The lower bound is inclusive via the strict
// less-than comparison.
func variantIndex(experimentID, userID string, split float64) int {
	sum := sha256.Sum256([]byte(experimentID + ":" + userID))
	bucket := binary.BigEndian.Uint64(sum[:8]) % 100
	if float64(bucket) < split*100 {
		return 0
	}
	return 1
}
