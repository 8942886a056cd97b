// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

/*
Package models defines the data structures shared across SafetyBot.

Key Components:

  - Stream: one independently tracked telemetry feed (speeding or a
    driver-performance subtype). Each stream owns its own watermark.
  - Severity: the provider's event severity. Only medium, high and critical
    events are admissible for delivery.
  - Event: the normalized record produced by every source adapter, whatever
    envelope the upstream API used.
  - FetchError: the tagged error returned by source adapters. The orchestrator
    inspects its Kind with errors.Is / errors.As instead of relying on
    control-flow exceptions.

Event IDs are unique only within their own stream. An ID of 500 in the
speeding stream and an ID of 500 in the crash stream are unrelated, so any
comparison or dedup key must include the stream.
*/
package models
