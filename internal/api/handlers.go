// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/orchestrator"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status               string           `json:"status"`
	LastSuccessfulCheck  *time.Time       `json:"last_successful_check,omitempty"`
	ConsecutiveFailures  int              `json:"consecutive_failures"`
	APIAccessible        bool             `json:"api_accessible"`
	ChatAccessible       bool             `json:"chat_accessible"`
	CheckIntervalSeconds float64          `json:"check_interval_seconds"`
	Watermarks           map[string]int64 `json:"watermarks,omitempty"`
	Problems             []string         `json:"problems,omitempty"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// CycleResponse summarizes one cycle.
type CycleResponse struct {
	StartedAt       time.Time         `json:"started_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	Result          string            `json:"result"`
	Fetched         int               `json:"fetched"`
	Accepted        map[string]int    `json:"accepted,omitempty"`
	Delivered       int               `json:"delivered"`
	Failed          int               `json:"failed"`
	Skipped         int               `json:"skipped"`
	StreamErrors    map[string]string `json:"stream_errors,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	State               string         `json:"state"`
	LastSuccess         *time.Time     `json:"last_success,omitempty"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastError           string         `json:"last_error,omitempty"`
	CriticalAlerted     bool           `json:"critical_alerted"`
	AuthAlerted         []string       `json:"auth_alerted,omitempty"`
	LastCycle           *CycleResponse `json:"last_cycle,omitempty"`
	UptimeSeconds       float64        `json:"uptime_seconds"`
}

// Liveness handles GET /healthz.
func (rt *Router) Liveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /health. Probes hit the live APIs, so the route is
// rate limited with the rest of the router.
func (rt *Router) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.cfg.HealthTimeout)
	defer cancel()

	report := rt.checker.Check(ctx)
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, newHealthResponse(report))
}

// Status handles GET /status.
func (rt *Router) Status(w http.ResponseWriter, _ *http.Request) {
	resp := newStatusResponse(rt.status.Status())
	resp.UptimeSeconds = time.Since(rt.started).Seconds()
	respondJSON(w, http.StatusOK, resp)
}

func newHealthResponse(r health.Report) HealthResponse {
	resp := HealthResponse{
		Status:               r.Status,
		LastSuccessfulCheck:  timePtr(r.LastSuccessfulCheck),
		ConsecutiveFailures:  r.ConsecutiveFailures,
		APIAccessible:        r.APIAccessible,
		ChatAccessible:       r.ChatAccessible,
		CheckIntervalSeconds: r.CheckInterval.Seconds(),
		Problems:             r.Problems,
		GeneratedAt:          r.GeneratedAt,
	}
	if len(r.Watermarks) > 0 {
		resp.Watermarks = make(map[string]int64, len(r.Watermarks))
		for st, id := range r.Watermarks {
			resp.Watermarks[string(st)] = id
		}
	}
	return resp
}

func newStatusResponse(s orchestrator.Status) StatusResponse {
	resp := StatusResponse{
		State:               s.State.String(),
		LastSuccess:         timePtr(s.LastSuccess),
		ConsecutiveFailures: s.ConsecutiveFailures,
		CriticalAlerted:     s.CriticalAlerted,
	}
	if s.LastError != nil {
		resp.LastError = s.LastError.Error()
	}
	for _, st := range s.AuthAlerted {
		resp.AuthAlerted = append(resp.AuthAlerted, string(st))
	}
	sort.Strings(resp.AuthAlerted)

	if c := s.LastCycle; c != nil {
		cr := &CycleResponse{
			StartedAt:       c.StartedAt,
			DurationSeconds: c.Duration.Seconds(),
			Result:          c.Result,
			Fetched:         c.Fetched,
			Delivered:       c.Delivered,
			Failed:          c.Failed,
			Skipped:         c.Skipped,
		}
		if len(c.Accepted) > 0 {
			cr.Accepted = make(map[string]int, len(c.Accepted))
			for st, n := range c.Accepted {
				cr.Accepted[string(st)] = n
			}
		}
		if len(c.StreamErrors) > 0 {
			cr.StreamErrors = make(map[string]string, len(c.StreamErrors))
			for st, err := range c.StreamErrors {
				if err != nil {
					cr.StreamErrors[string(st)] = err.Error()
				}
			}
		}
		if c.Err != nil {
			cr.Error = c.Err.Error()
		}
		resp.LastCycle = cr
	}
	return resp
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}
