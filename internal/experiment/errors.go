// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package experiment

import "errors"

// Sentinel errors returned by the engine. Callers match with errors.Is.
var (
	// ErrNotFound indicates an unknown experiment ID.
	ErrNotFound = errors.New("experiment not found")

	// ErrInvalidState indicates a lifecycle operation from the wrong state,
	// such as starting a completed experiment or starting without two variants.
	ErrInvalidState = errors.New("invalid experiment state")

	// ErrVariantLimit indicates an attempt to add a third variant.
	// Experiments are strictly two-arm.
	ErrVariantLimit = errors.New("experiment already has two variants")

	// ErrDuplicateVariant indicates a variant name collision within an experiment.
	ErrDuplicateVariant = errors.New("variant name already exists")

	// ErrUnassigned indicates an observation from a user with no variant
	// membership. This is a routine outcome, not an exceptional one: callers
	// typically log it and move on.
	ErrUnassigned = errors.New("user not assigned to any variant")
)
