// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/bifurcus/internal/config"
)

// Router consumes assignment and observation topics and persists each
// event through the processor. Middleware handles panic recovery,
// exponential backoff retry, and poison queue routing for messages that
// exhaust their retries.
type Router struct {
	router *message.Router
}

// NewRouter wires the processor's handlers onto a Watermill router.
// poisonPublisher may equal pubsub for an in-process deployment; pass nil
// to disable the poison queue regardless of config.
func NewRouter(
	cfg *config.IngestConfig,
	pubsub message.Subscriber,
	poisonPublisher message.Publisher,
	processor *Processor,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.PoisonQueueEnabled && poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	wmRouter.AddConsumerHandler(
		"persist-assignments",
		TopicAssignments,
		pubsub,
		processor.HandleAssignment,
	)
	wmRouter.AddConsumerHandler(
		"persist-observations",
		TopicObservations,
		pubsub,
		processor.HandleObservation,
	)

	return &Router{router: wmRouter}, nil
}

// Run blocks until the context is cancelled or the router fails.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel closed once all handlers are consuming.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close drains handlers within the configured close timeout.
func (r *Router) Close() error {
	return r.router.Close()
}
