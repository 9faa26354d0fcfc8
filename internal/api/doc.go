// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

// Package api exposes the experiment engine over HTTP using the Chi
// router. Lifecycle operations (create, variants, start, stop) persist
// synchronously through the circuit-breaker store; the hot paths
// (assignments, observations) answer from memory and hand persistence
// to the ingest pipeline.
package api
