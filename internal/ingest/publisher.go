// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/bifurcus/internal/metrics"
)

// Publisher serializes engine events onto the pub/sub. Publish failures
// surface to the caller; the in-memory engine state is already updated by
// then, so the API reports success for the user-visible operation and
// logs the persistence gap.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a Watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishAssignment emits an assignment event.
func (p *Publisher) PublishAssignment(event *AssignmentEvent) error {
	data, err := MarshalAssignment(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := p.pub.Publish(TopicAssignments, msg); err != nil {
		return fmt.Errorf("publish assignment event: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(TopicAssignments).Inc()
	return nil
}

// PublishObservation emits an observation event.
func (p *Publisher) PublishObservation(event *ObservationEvent) error {
	data, err := MarshalObservation(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := p.pub.Publish(TopicObservations, msg); err != nil {
		return fmt.Errorf("publish observation event: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(TopicObservations).Inc()
	return nil
}
