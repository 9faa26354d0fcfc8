// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package ingest

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/bifurcus/internal/logging"
	"github.com/tomtom215/bifurcus/internal/metrics"
	"github.com/tomtom215/bifurcus/internal/models"
)

// Store is the persistence surface the processor writes to. Satisfied by
// database.BreakerStore.
type Store interface {
	SaveAssignment(ctx context.Context, experimentID, userID, variant string, at time.Time) error
	SaveObservation(ctx context.Context, experimentID, variant, metric string, obs models.Observation) error
}

// Processor persists events consumed from the pub/sub. Handler errors
// propagate to the router, which retries with backoff and finally routes
// to the poison queue.
type Processor struct {
	store Store
}

// NewProcessor creates a processor writing to the given store.
func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// HandleAssignment persists one assignment event.
func (p *Processor) HandleAssignment(msg *message.Message) error {
	start := time.Now()
	defer func() {
		metrics.IngestHandlerDuration.WithLabelValues("assignments").Observe(time.Since(start).Seconds())
	}()

	event, err := UnmarshalAssignment(msg.Payload)
	if err != nil {
		// Malformed payloads never become valid; returning the error lets
		// retry middleware exhaust and the poison queue capture it.
		metrics.EventsFailed.WithLabelValues(TopicAssignments).Inc()
		return err
	}

	if err := p.store.SaveAssignment(msg.Context(),
		event.ExperimentID, event.UserID, event.Variant, event.AssignedAt); err != nil {
		metrics.EventsFailed.WithLabelValues(TopicAssignments).Inc()
		return err
	}

	metrics.EventsProcessed.WithLabelValues(TopicAssignments).Inc()
	logging.Debug().
		Str("experiment_id", event.ExperimentID).
		Str("user_id", event.UserID).
		Str("variant", event.Variant).
		Msg("Assignment persisted")
	return nil
}

// HandleObservation persists one observation event.
func (p *Processor) HandleObservation(msg *message.Message) error {
	start := time.Now()
	defer func() {
		metrics.IngestHandlerDuration.WithLabelValues("observations").Observe(time.Since(start).Seconds())
	}()

	event, err := UnmarshalObservation(msg.Payload)
	if err != nil {
		metrics.EventsFailed.WithLabelValues(TopicObservations).Inc()
		return err
	}

	obs := models.Observation{
		UserID:    event.UserID,
		Value:     event.Value,
		Timestamp: event.ObservedAt,
	}
	if err := p.store.SaveObservation(msg.Context(),
		event.ExperimentID, event.Variant, event.Metric, obs); err != nil {
		metrics.EventsFailed.WithLabelValues(TopicObservations).Inc()
		return err
	}

	metrics.EventsProcessed.WithLabelValues(TopicObservations).Inc()
	return nil
}
