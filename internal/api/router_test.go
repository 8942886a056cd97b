// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/models"
	"github.com/tomtom215/safetybot/internal/orchestrator"
)

type fakeChecker struct {
	report health.Report
}

func (f fakeChecker) Check(context.Context) health.Report { return f.report }

type fakeStatus struct {
	status orchestrator.Status
}

func (f fakeStatus) Status() orchestrator.Status { return f.status }

func newTestRouter(report health.Report, status orchestrator.Status, perMinute int) http.Handler {
	return NewRouter(fakeChecker{report: report}, fakeStatus{status: status}, RouterConfig{RequestsPerMinute: perMinute})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(health.Report{}, orchestrator.Status{}, 0), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		status   string
		wantCode int
	}{
		{"healthy", health.StatusHealthy, http.StatusOK},
		{"degraded", health.StatusDegraded, http.StatusOK},
		{"unhealthy", health.StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			report := health.Report{
				Status:         tt.status,
				APIAccessible:  true,
				ChatAccessible: tt.status != health.StatusUnhealthy,
				CheckInterval:  5 * time.Minute,
				Watermarks:     map[models.Stream]int64{models.StreamCrash: 500},
				GeneratedAt:    now,
			}
			rec := get(t, newTestRouter(report, orchestrator.Status{}, 0), "/health")
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status || resp.Watermarks["crash"] != 500 || resp.CheckIntervalSeconds != 300 {
				t.Errorf("unexpected response: %+v", resp)
			}
			if resp.LastSuccessfulCheck != nil {
				t.Error("zero last success should be omitted")
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	last := time.Date(2026, 3, 1, 11, 55, 0, 0, time.UTC)
	status := orchestrator.Status{
		State:               orchestrator.Idle,
		LastSuccess:         last,
		ConsecutiveFailures: 2,
		LastError:           errors.New("all streams failed"),
		AuthAlerted:         []models.Stream{models.StreamSpeeding, models.StreamCrash},
		LastCycle: &orchestrator.CycleReport{
			StartedAt:    last,
			Duration:     1500 * time.Millisecond,
			Result:       orchestrator.ResultPartial,
			Fetched:      4,
			Accepted:     map[models.Stream]int{models.StreamCrash: 2},
			Delivered:    2,
			StreamErrors: map[models.Stream]error{models.StreamSpeeding: errors.New("timeout")},
		},
	}

	rec := get(t, newTestRouter(health.Report{}, status, 0), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConsecutiveFailures != 2 || resp.LastError != "all streams failed" {
		t.Errorf("unexpected status: %+v", resp)
	}
	if strings.Join(resp.AuthAlerted, ",") != "crash,speeding" {
		t.Errorf("auth alerted should be sorted: %v", resp.AuthAlerted)
	}
	if resp.LastSuccess == nil || !resp.LastSuccess.Equal(last) {
		t.Errorf("last success = %v", resp.LastSuccess)
	}
	c := resp.LastCycle
	if c == nil || c.Result != orchestrator.ResultPartial || c.DurationSeconds != 1.5 ||
		c.Accepted["crash"] != 2 || c.StreamErrors["speeding"] != "timeout" {
		t.Errorf("unexpected cycle: %+v", c)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestRouter(health.Report{}, orchestrator.Status{}, 0), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in exposition")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	h := newTestRouter(health.Report{}, orchestrator.Status{}, 2)
	for i := 0; i < 2; i++ {
		if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after limit, got %d", rec.Code)
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	srv := NewServer("127.0.0.1:0", http.NotFoundHandler())
	if srv.Addr != "127.0.0.1:0" || srv.ReadHeaderTimeout == 0 {
		t.Errorf("unexpected server: %+v", srv)
	}
}
