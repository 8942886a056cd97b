// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package models

import (
	"fmt"
	"strings"
)

// Stream identifies one logical event feed.
type Stream string

const (
	StreamSpeeding          Stream = "speeding"
	StreamHardBrake         Stream = "hard_brake"
	StreamCrash             Stream = "crash"
	StreamSeatBeltViolation Stream = "seat_belt_violation"
	StreamStopSignViolation Stream = "stop_sign_violation"
	StreamDistraction       Stream = "distraction"
	StreamUnsafeLaneChange  Stream = "unsafe_lane_change"
)

var performanceStreams = []Stream{
	StreamHardBrake,
	StreamCrash,
	StreamSeatBeltViolation,
	StreamStopSignViolation,
	StreamDistraction,
	StreamUnsafeLaneChange,
}

// PerformanceStreams returns the driver-performance subtypes in polling order.
func PerformanceStreams() []Stream {
	out := make([]Stream, len(performanceStreams))
	copy(out, performanceStreams)
	return out
}

// AllStreams returns every stream, speeding first.
func AllStreams() []Stream {
	return append([]Stream{StreamSpeeding}, performanceStreams...)
}

// ParseStream converts a provider event type (e.g. "hard_brake") to a Stream.
func ParseStream(s string) (Stream, error) {
	candidate := Stream(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllStreams() {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stream %q", s)
}

// IsPerformance reports whether the stream is a driver-performance subtype.
func (s Stream) IsPerformance() bool {
	for _, st := range performanceStreams {
		if st == s {
			return true
		}
	}
	return false
}

// Title returns the human readable name, e.g. "Seat Belt Violation".
func (s Stream) Title() string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (s Stream) String() string {
	return string(s)
}
