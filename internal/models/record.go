// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package models

import "time"

// DeliveryRecord is published on the event bus for every accepted event
// once its delivery attempt has finished.
type DeliveryRecord struct {
	Event       Event     `json:"event"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}
