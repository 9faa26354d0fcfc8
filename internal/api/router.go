// Bifurcus - A/B Experiment Engine for News Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bifurcus

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/bifurcus/internal/config"
	"github.com/tomtom215/bifurcus/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router from the API configuration.
func NewRouter(handler *Handler, cfg *config.APIConfig) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	if cfg != nil {
		mwConfig.CORSAllowedOrigins = cfg.CORSOrigins
		mwConfig.RateLimitRequests = cfg.RateLimitReqs
		mwConfig.RateLimitWindow = cfg.RateLimitWindow
		if cfg.DefaultPageSize > 0 {
			handler.defaultPageSize = cfg.DefaultPageSize
		}
		if cfg.MaxPageSize > 0 {
			handler.maxPageSize = cfg.MaxPageSize
		}
	}
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/experiments", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		// Lifecycle operations are infrequent and rate limited tightly.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitWrite())
			r.Post("/", router.handler.CreateExperiment)
			r.Post("/{id}/variants", router.handler.AddVariant)
			r.Post("/{id}/start", router.handler.StartExperiment)
			r.Post("/{id}/stop", router.handler.StopExperiment)
		})

		// Hot path: assignments and observations at the default limit.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Post("/{id}/assignments", router.handler.Assign)
			r.Post("/{id}/observations", router.handler.RecordObservation)
		})

		// Reads.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Get("/", router.handler.ListExperiments)
			r.Get("/{id}", router.handler.GetExperiment)
			r.Get("/{id}/result", router.handler.GetResult)
			r.Get("/{id}/summary", router.handler.GetSummary)
		})

		// Exports stream whole experiments and are limited hardest.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitExport())
			r.Get("/{id}/export", router.handler.Export)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
