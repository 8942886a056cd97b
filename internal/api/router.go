// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/middleware"
	"github.com/tomtom215/safetybot/internal/orchestrator"
)

// HealthChecker builds a health report. *health.Checker implements it.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// StatusSource exposes orchestrator state. *orchestrator.Orchestrator
// implements it.
type StatusSource interface {
	Status() orchestrator.Status
}

// RouterConfig tunes the router.
type RouterConfig struct {
	// RequestsPerMinute is the per-IP rate limit. Default 60.
	RequestsPerMinute int
	// HealthTimeout bounds a /health request. Default 45s.
	HealthTimeout time.Duration
}

// Router holds the handler dependencies.
type Router struct {
	checker HealthChecker
	status  StatusSource
	cfg     RouterConfig
	started time.Time
}

// NewRouter returns the chi handler for all routes.
func NewRouter(checker HealthChecker, status StatusSource, cfg RouterConfig) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 45 * time.Second
	}
	rt := &Router{checker: checker, status: status, cfg: cfg, started: time.Now()}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", rt.Liveness)
	r.Get("/health", rt.Health)
	r.Get("/status", rt.Status)
	return r
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
