// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package services

import (
	"context"
	"fmt"
)

// MessageRouter matches ingest.Router's lifecycle surface.
type MessageRouter interface {
	Run(ctx context.Context) error
	Close() error
}

// IngestService runs the event persistence router under supervision.
// The router blocks in Run until the context is canceled; supervisor
// restarts re-subscribe all handlers.
type IngestService struct {
	router MessageRouter
}

// NewIngestService wraps an ingest router.
func NewIngestService(router MessageRouter) *IngestService {
	return &IngestService{router: router}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	if err := s.router.Run(ctx); err != nil {
		return fmt.Errorf("ingest router: %w", err)
	}
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *IngestService) String() string {
	return "ingest-router"
}
