// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

/*
Package middleware provides the HTTP middleware of the ops endpoint.

Key Components:

  - RequestID: reuses an upstream X-Request-ID or generates a UUID
  - AccessLog: one debug log line per request, tagged with the request ID
  - PrometheusMetrics: request counts and latency labelled by route pattern

Middleware Stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)

Routes are labelled by their chi pattern rather than the raw path, so
scanners probing random URLs cannot grow the label set. Unmatched requests
are labelled "unmatched".
*/
package middleware
