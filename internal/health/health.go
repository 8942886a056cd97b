// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package health probes the telemetry API and chat channel and reports the
// poller's state.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/formatter"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/models"
	"github.com/tomtom215/safetybot/internal/orchestrator"
)

// Overall statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger verifies that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// StatusSource exposes the orchestrator state.
type StatusSource interface {
	Status() orchestrator.Status
}

// WatermarkReader reads the current watermarks.
type WatermarkReader interface {
	Snapshot(ctx context.Context, streams []models.Stream) (map[models.Stream]int64, error)
}

// Notifier sends text to the chat channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Config configures the Checker.
type Config struct {
	CheckInterval    time.Duration
	FailureThreshold int
	ProbeTimeout     time.Duration
	Streams          []models.Stream
}

// Report is the result of one health check.
type Report struct {
	Status              string
	LastSuccessfulCheck time.Time
	ConsecutiveFailures int
	APIAccessible       bool
	ChatAccessible      bool
	CheckInterval       time.Duration
	Watermarks          map[models.Stream]int64
	Problems            []string
	GeneratedAt         time.Time
}

// Healthy reports whether Status is healthy.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Checker assembles health reports.
type Checker struct {
	api    []Pinger
	chat   Pinger
	status StatusSource
	store  WatermarkReader
	cfg    Config
	now    func() time.Time
}

// NewChecker creates a Checker. store may be nil.
func NewChecker(api []Pinger, chat Pinger, status StatusSource, store WatermarkReader, cfg Config) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Checker{api: api, chat: chat, status: status, store: store, cfg: cfg, now: time.Now}
}

// Check probes every dependency and builds a Report.
func (c *Checker) Check(ctx context.Context) Report {
	st := c.status.Status()
	r := Report{
		LastSuccessfulCheck: st.LastSuccess,
		ConsecutiveFailures: st.ConsecutiveFailures,
		APIAccessible:       true,
		ChatAccessible:      true,
		CheckInterval:       c.cfg.CheckInterval,
		GeneratedAt:         c.now(),
	}

	for _, p := range c.api {
		if err := c.probe(ctx, p); err != nil {
			r.APIAccessible = false
			r.Problems = append(r.Problems, fmt.Sprintf("telemetry API: %v", err))
			break
		}
	}
	if c.chat != nil {
		if err := c.probe(ctx, c.chat); err != nil {
			r.ChatAccessible = false
			r.Problems = append(r.Problems, fmt.Sprintf("chat channel: %v", err))
		}
	}
	if c.store != nil {
		wm, err := c.store.Snapshot(ctx, c.cfg.Streams)
		if err != nil {
			r.Problems = append(r.Problems, fmt.Sprintf("watermark store: %v", err))
		}
		r.Watermarks = wm
	}
	if st.ConsecutiveFailures > 0 {
		r.Problems = append(r.Problems, fmt.Sprintf("%d consecutive failed cycles", st.ConsecutiveFailures))
	}
	if len(st.AuthAlerted) > 0 {
		r.Problems = append(r.Problems, fmt.Sprintf("credentials rejected for %v", st.AuthAlerted))
	}

	stale := c.cfg.CheckInterval > 0 && !st.LastSuccess.IsZero() &&
		r.GeneratedAt.Sub(st.LastSuccess) > 3*c.cfg.CheckInterval
	if stale {
		r.Problems = append(r.Problems, "no successful cycle in the last three intervals")
	}

	switch {
	case !r.APIAccessible || !r.ChatAccessible || st.ConsecutiveFailures >= c.cfg.FailureThreshold:
		r.Status = StatusUnhealthy
	case len(r.Problems) > 0:
		r.Status = StatusDegraded
	default:
		r.Status = StatusHealthy
	}
	return r
}

func (c *Checker) probe(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// Reporter sends health reports and the startup message to the chat.
type Reporter struct {
	checker  *Checker
	notifier Notifier
	logger   zerolog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(checker *Checker, notifier Notifier) *Reporter {
	return &Reporter{
		checker:  checker,
		notifier: notifier,
		logger:   logging.With().Str("component", "health").Logger(),
	}
}

// Render builds the report text.
func Render(r Report) string {
	return formatter.HealthReport(formatter.HealthSnapshot{
		Healthy:             r.Healthy(),
		LastSuccess:         r.LastSuccessfulCheck,
		ConsecutiveFailures: r.ConsecutiveFailures,
		APIReachable:        r.APIAccessible,
		ChatReachable:       r.ChatAccessible,
		CheckInterval:       r.CheckInterval,
		Now:                 r.GeneratedAt,
	})
}

// Send runs a check and posts the report.
func (r *Reporter) Send(ctx context.Context) (Report, error) {
	report := r.checker.Check(ctx)
	r.logger.Info().
		Str("status", report.Status).
		Bool("api", report.APIAccessible).
		Bool("chat", report.ChatAccessible).
		Int("consecutive_failures", report.ConsecutiveFailures).
		Strs("problems", report.Problems).
		Msg("Health check")

	if err := r.notifier.Notify(ctx, Render(report)); err != nil {
		return report, fmt.Errorf("send health report: %w", err)
	}
	return report, nil
}

// Startup verifies the chat channel, announces the start and probes the
// telemetry API. Only a chat failure is returned: without a channel no
// alert can ever be delivered. An API failure is logged and left to the
// poll cycle to escalate.
func (r *Reporter) Startup(ctx context.Context, streams []models.Stream) error {
	if r.checker.chat != nil {
		if err := r.checker.probe(ctx, r.checker.chat); err != nil {
			return fmt.Errorf("chat channel connection test: %w", err)
		}
	}
	if err := r.notifier.Notify(ctx, formatter.StartupMessage(r.checker.cfg.CheckInterval, streams)); err != nil {
		return fmt.Errorf("send startup message: %w", err)
	}

	for _, p := range r.checker.api {
		if err := r.checker.probe(ctx, p); err != nil {
			r.logger.Warn().Err(err).Msg("Telemetry API connection test failed")
			return nil
		}
	}
	r.logger.Info().Msg("Connection tests passed")
	return nil
}
