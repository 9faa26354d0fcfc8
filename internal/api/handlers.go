// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/bifurcus/internal/experiment"
	"github.com/tomtom215/bifurcus/internal/ingest"
	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/metrics"
	"github.com/tomtom215/bifurcus/internal/models"
)

// LifecycleStore persists the rare lifecycle writes synchronously.
// Satisfied by database.BreakerStore.
type LifecycleStore interface {
	SaveExperiment(ctx context.Context, exp *models.Experiment) error
	SaveVariant(ctx context.Context, experimentID string, position int, v *models.Variant) error
	SaveAnalysisResult(ctx context.Context, experimentID string, r *models.AnalysisResult) error
}

// EventPublisher hands hot-path writes to the ingest pipeline.
type EventPublisher interface {
	PublishAssignment(event *ingest.AssignmentEvent) error
	PublishObservation(event *ingest.ObservationEvent) error
}

// Pinger reports database connectivity for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for all HTTP handlers. store, events, and
// db may be nil, in which case the engine runs memory-only.
type Handler struct {
	engine          *experiment.Engine
	store           LifecycleStore
	events          EventPublisher
	db              Pinger
	startTime       time.Time
	defaultPageSize int
	maxPageSize     int
}

// NewHandler creates a Handler.
func NewHandler(engine *experiment.Engine, store LifecycleStore, events EventPublisher, db Pinger) *Handler {
	return &Handler{
		engine:          engine,
		store:           store,
		events:          events,
		db:              db,
		startTime:       time.Now(),
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// pageBounds parses limit/offset query parameters, clamping the limit to
// the configured maximum. Absent or malformed values fall back to the
// defaults rather than erroring.
func (h *Handler) pageBounds(r *http.Request) (limit, offset int) {
	limit = h.defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// persistExperiment writes the current experiment snapshot, logging
// rather than failing the request when the store is degraded. The engine
// remains the source of truth for live traffic.
func (h *Handler) persistExperiment(ctx context.Context, experimentID string) {
	if h.store == nil {
		return
	}
	exp, err := h.engine.Get(experimentID)
	if err != nil {
		return
	}
	if err := h.store.SaveExperiment(ctx, exp); err != nil {
		logging.Warn().Err(err).
			Str("experiment_id", experimentID).
			Msg("Failed to persist experiment")
	}
}

// CreateExperiment handles POST /api/v1/experiments.
func (h *Handler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CreateExperimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	id, err := h.engine.Create(experiment.CreateParams{
		Name:          req.Name,
		Description:   req.Description,
		TrafficSplit:  req.TrafficSplit,
		TargetMetric:  req.TargetMetric,
		MinSampleSize: req.MinimumSampleSize,
		Alpha:         req.SignificanceLevel,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	metrics.ExperimentsCreated.Inc()
	h.persistExperiment(r.Context(), id)

	exp, err := h.engine.Get(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, models.NewSuccessResponse(exp, time.Since(start)))
}

// ListExperiments handles GET /api/v1/experiments.
func (h *Handler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	items := h.engine.List()
	total := len(items)

	limit, offset := h.pageBounds(r)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := items[offset:end]

	respondJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"experiments": page,
		"count":       len(page),
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	}, time.Since(start)))
}

// GetExperiment handles GET /api/v1/experiments/{id}.
func (h *Handler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	exp, err := h.engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(exp, time.Since(start)))
}

// AddVariant handles POST /api/v1/experiments/{id}/variants.
func (h *Handler) AddVariant(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	experimentID := chi.URLParam(r, "id")

	var req AddVariantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.engine.AddVariant(experimentID, req.Name, req.Config); err != nil {
		respondEngineError(w, err)
		return
	}

	exp, err := h.engine.Get(experimentID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if h.store != nil {
		for i, v := range exp.Variants {
			if v.Name != req.Name {
				continue
			}
			if err := h.store.SaveVariant(r.Context(), experimentID, i, v); err != nil {
				logging.Warn().Err(err).
					Str("experiment_id", experimentID).
					Str("variant", req.Name).
					Msg("Failed to persist variant")
			}
		}
	}

	respondJSON(w, http.StatusCreated, models.NewSuccessResponse(exp, time.Since(start)))
}

// StartExperiment handles POST /api/v1/experiments/{id}/start.
func (h *Handler) StartExperiment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	experimentID := chi.URLParam(r, "id")

	if err := h.engine.Start(experimentID); err != nil {
		respondEngineError(w, err)
		return
	}

	metrics.ExperimentsActive.Inc()
	h.persistExperiment(r.Context(), experimentID)

	exp, err := h.engine.Get(experimentID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(exp, time.Since(start)))
}

// StopExperiment handles POST /api/v1/experiments/{id}/stop. Stopping
// runs the final analysis; the response carries the full experiment
// including any result.
func (h *Handler) StopExperiment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	experimentID := chi.URLParam(r, "id")

	result, err := h.engine.Stop(experimentID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	metrics.ExperimentsActive.Dec()
	if result == nil {
		metrics.RecordAnalysis("skipped")
	} else if result.Degenerate {
		metrics.RecordAnalysis("degenerate")
	} else if result.IsSignificant {
		metrics.RecordAnalysis("significant")
	} else {
		metrics.RecordAnalysis("not_significant")
	}

	h.persistExperiment(r.Context(), experimentID)
	if h.store != nil && result != nil {
		if err := h.store.SaveAnalysisResult(r.Context(), experimentID, result); err != nil {
			logging.Warn().Err(err).
				Str("experiment_id", experimentID).
				Msg("Failed to persist analysis result")
		}
	}

	exp, err := h.engine.Get(experimentID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(exp, time.Since(start)))
}

// Assign handles POST /api/v1/experiments/{id}/assignments. Assignment
// is deterministic; repeat calls for the same user return the same
// variant. A non-running or unknown experiment yields assigned=false
// rather than an error so callers can fall back to default content.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	experimentID := chi.URLParam(r, "id")

	var req AssignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	variant, ok := h.engine.Assign(experimentID, req.UserID)
	if !ok {
		metrics.AssignmentsRejected.Inc()
		respondJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
			"experiment_id": experimentID,
			"user_id":       req.UserID,
			"assigned":      false,
		}, time.Since(start)))
		return
	}

	metrics.RecordAssignment(experimentID, variant)
	if h.events != nil {
		err := h.events.PublishAssignment(&ingest.AssignmentEvent{
			EventID:      watermill.NewUUID(),
			ExperimentID: experimentID,
			UserID:       req.UserID,
			Variant:      variant,
			AssignedAt:   time.Now().UTC(),
		})
		if err != nil {
			logging.Warn().Err(err).
				Str("experiment_id", experimentID).
				Msg("Failed to publish assignment event")
		}
	}

	respondJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"experiment_id": experimentID,
		"user_id":       req.UserID,
		"variant":       variant,
		"assigned":      true,
	}, time.Since(start)))
}

// RecordObservation handles POST /api/v1/experiments/{id}/observations.
func (h *Handler) RecordObservation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	experimentID := chi.URLParam(r, "id")

	var req RecordObservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if err := h.engine.Record(experimentID, req.UserID, req.Metric, req.Value); err != nil {
		if err == experiment.ErrUnassigned {
			metrics.ObservationsUnassigned.Inc()
		}
		respondEngineError(w, err)
		return
	}

	metrics.RecordObservation(experimentID, req.Metric)
	if h.events != nil {
		// Membership is established by Record, so the variant lookup
		// cannot miss here.
		variant := h.variantForUser(experimentID, req.UserID)
		err := h.events.PublishObservation(&ingest.ObservationEvent{
			EventID:      watermill.NewUUID(),
			ExperimentID: experimentID,
			Variant:      variant,
			UserID:       req.UserID,
			Metric:       req.Metric,
			Value:        req.Value,
			ObservedAt:   time.Now().UTC(),
		})
		if err != nil {
			logging.Warn().Err(err).
				Str("experiment_id", experimentID).
				Msg("Failed to publish observation event")
		}
	}

	respondJSON(w, http.StatusAccepted, models.NewSuccessResponse(map[string]interface{}{
		"experiment_id": experimentID,
		"user_id":       req.UserID,
		"metric":        req.Metric,
		"recorded":      true,
	}, time.Since(start)))
}

// variantForUser resolves which arm a user belongs to.
func (h *Handler) variantForUser(experimentID, userID string) string {
	exp, err := h.engine.Get(experimentID)
	if err != nil {
		return ""
	}
	for _, v := range exp.Variants {
		if v.AssignedUsers[userID] {
			return v.Name
		}
	}
	return ""
}

// GetResult handles GET /api/v1/experiments/{id}/result.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := h.engine.Result(chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "NO_RESULT", "Experiment has not been analyzed", nil)
		return
	}
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(result, time.Since(start)))
}

// GetSummary handles GET /api/v1/experiments/{id}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	summary, err := h.engine.Summary(chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(summary, time.Since(start)))
}

// Export handles GET /api/v1/experiments/{id}/export?format=json|csv.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	switch format {
	case "json":
		data, err := h.engine.ExportJSON(experimentID)
		if err != nil {
			respondEngineError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="experiment_`+experimentID+`.json"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logging.Error().Err(err).Msg("Failed to write JSON export")
		}
	case "csv":
		if _, err := h.engine.Get(experimentID); err != nil {
			respondEngineError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="experiment_`+experimentID+`.csv"`)
		if err := h.engine.ExportCSV(experimentID, w); err != nil {
			// Headers may already be written; log instead of re-responding.
			logging.Error().Err(err).
				Str("experiment_id", experimentID).
				Msg("CSV export failed")
		}
	default:
		respondError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or csv", nil)
	}
}

// HealthLive handles GET /api/v1/health/live. Returns 200 whenever the
// process is up, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, 0))
}

// HealthReady handles GET /api/v1/health/ready. Ready means the engine
// is serving and the database (when configured) answers pings.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db == nil || h.db.Ping(r.Context()) == nil

	status := http.StatusOK
	state := "ready"
	if !dbConnected {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	respondJSON(w, status, models.NewSuccessResponse(map[string]interface{}{
		"status":             state,
		"database_connected": dbConnected,
		"experiments":        h.engine.Count(),
		"uptime":             time.Since(h.startTime).Seconds(),
	}, 0))
}
