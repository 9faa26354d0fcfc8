// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/bifurcus/internal/experiment"
	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/models"
	"github.com/tomtom215/bifurcus/internal/validation"
)

// maxRequestBodyBytes bounds request bodies; experiment payloads are small.
const maxRequestBodyBytes = 1 << 20

// sanitizeLogValue replaces control characters so attacker-supplied
// strings cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends an error envelope and logs the underlying cause.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, status, models.NewErrorResponse(code, message, ""))
}

// decodeJSON reads and unmarshals a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// validateRequest runs struct validation and converts failures to the
// API error shape.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// respondEngineError maps engine sentinel errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, experiment.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Experiment not found", nil)
	case errors.Is(err, experiment.ErrInvalidState):
		respondError(w, http.StatusConflict, "INVALID_STATE", "Operation not allowed in the experiment's current state", err)
	case errors.Is(err, experiment.ErrVariantLimit):
		respondError(w, http.StatusConflict, "VARIANT_LIMIT", "Experiments compare exactly two variants", nil)
	case errors.Is(err, experiment.ErrDuplicateVariant):
		respondError(w, http.StatusConflict, "DUPLICATE_VARIANT", "A variant with that name already exists", nil)
	case errors.Is(err, experiment.ErrUnassigned):
		respondError(w, http.StatusUnprocessableEntity, "NOT_ASSIGNED", "User is not assigned to this experiment", nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
