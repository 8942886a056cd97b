// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package models

import (
	"strconv"
	"strings"
	"time"
)

// Severity is the provider-assigned event severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a raw severity string. Unknown values map to "".
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev
	default:
		return ""
	}
}

// Admissible reports whether events of this severity may be delivered.
// Low and unknown severities are never admissible.
func (s Severity) Admissible() bool {
	switch s {
	case SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Event is the normalized record every source adapter produces.
type Event struct {
	ID        int64     `json:"id"`
	Stream    Stream    `json:"stream"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// Payload holds the opaque fields needed for formatting and media acquisition.
type Payload struct {
	VehicleNumber string   `json:"vehicle_number,omitempty"`
	DriverName    string   `json:"driver_name,omitempty"`
	Latitude      *float64 `json:"lat,omitempty"`
	Longitude     *float64 `json:"lon,omitempty"`

	// Speed figures as reported by the provider, in km/h.
	MinSpeedKph     *float64 `json:"min_vehicle_speed,omitempty"`
	MaxSpeedKph     *float64 `json:"max_vehicle_speed,omitempty"`
	AvgOverSpeedKph *float64 `json:"avg_over_speed_in_kph,omitempty"`

	MediaAvailable  bool   `json:"media_available,omitempty"`
	FrontFacingURL  string `json:"front_facing_url,omitempty"`
	DriverFacingURL string `json:"driver_facing_url,omitempty"`
	RawTimestamp    string `json:"raw_timestamp,omitempty"`
	ProviderSubtype string `json:"type,omitempty"`
}

// Key returns a stream-qualified identifier, e.g. "crash:500".
func (e Event) Key() string {
	return string(e.Stream) + ":" + strconv.FormatInt(e.ID, 10)
}
