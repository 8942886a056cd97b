// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package metrics holds the Prometheus collectors for SafetyBot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle Metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_cycles_total",
			Help: "Poll cycles by result",
		},
		[]string{"result"}, // "success", "partial", "failure", "skipped"
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "safetybot_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safetybot_consecutive_failures",
			Help: "Consecutive failed cycles since the last success",
		},
	)

	CriticalAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_critical_alerts_total",
			Help: "Critical alerts pushed to the chat channel",
		},
		[]string{"reason"}, // "auth", "consecutive_failures"
	)

	// Event Metrics
	EventsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_events_fetched_total",
			Help: "Events returned by the telemetry API",
		},
		[]string{"stream"},
	)

	EventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_events_accepted_total",
			Help: "Events that passed the eligibility filter",
		},
		[]string{"stream"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_fetch_errors_total",
			Help: "Failed fetches by stream and error kind",
		},
		[]string{"stream", "kind"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safetybot_fetch_duration_seconds",
			Help:    "Telemetry API fetch latency including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stream"},
	)

	Watermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "safetybot_watermark",
			Help: "Highest processed event id per stream",
		},
		[]string{"stream"},
	)

	// Delivery Metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_deliveries_total",
			Help: "Delivery pipeline outcomes",
		},
		[]string{"stream", "outcome"}, // "sent", "sent_without_media", "failed", "skipped"
	)

	MediaAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_media_acquisitions_total",
			Help: "Media acquisition attempts by result",
		},
		[]string{"result"}, // "ok", "unavailable", "too_large", "error"
	)

	MediaBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safetybot_media_bytes_total",
			Help: "Bytes of media downloaded",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "safetybot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Export Metrics
	ExportRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safetybot_export_rows_total",
			Help: "Rows appended to the daily export archive",
		},
	)

	ExportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_export_runs_total",
			Help: "Daily export runs by result",
		},
		[]string{"result"},
	)

	// Ops endpoint metrics
	OpsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safetybot_ops_requests_total",
			Help: "Requests served by the ops endpoint",
		},
		[]string{"method", "route", "status"},
	)

	OpsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safetybot_ops_request_duration_seconds",
			Help:    "Ops endpoint request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordCycle records the result and duration of one poll cycle.
func RecordCycle(result string, duration time.Duration) {
	CyclesTotal.WithLabelValues(result).Inc()
	if result != "skipped" {
		CycleDuration.Observe(duration.Seconds())
	}
}

// RecordFetch records one adapter fetch. kind is empty on success.
func RecordFetch(stream string, fetched int, kind string, duration time.Duration) {
	FetchDuration.WithLabelValues(stream).Observe(duration.Seconds())
	if kind != "" {
		FetchErrors.WithLabelValues(stream, kind).Inc()
		return
	}
	EventsFetched.WithLabelValues(stream).Add(float64(fetched))
}

// RecordDelivery records one delivery pipeline outcome.
func RecordDelivery(stream, outcome string) {
	Deliveries.WithLabelValues(stream, outcome).Inc()
}

// RecordOpsRequest records one ops endpoint request.
func RecordOpsRequest(method, route, status string, duration time.Duration) {
	OpsRequests.WithLabelValues(method, route, status).Inc()
	OpsRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
