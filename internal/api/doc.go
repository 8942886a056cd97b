// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package api serves SafetyBot's optional operations endpoint: Prometheus
// metrics plus liveness, health and cycle status as JSON. It is off by
// default and intended for a loopback or cluster-internal address.
//
// Routes:
//
//	GET /metrics   Prometheus exposition
//	GET /healthz   liveness, always 200 while the process runs
//	GET /health    full health report, 503 when unhealthy
//	GET /status    orchestrator state and the last cycle report
package api
