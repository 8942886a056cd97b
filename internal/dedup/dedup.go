// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package dedup tracks the event ids seen during the current poll cycle.
package dedup

import "github.com/tomtom215/safetybot/internal/models"

type key struct {
	stream models.Stream
	id     int64
}

// Set is the cycle dedup set. It is keyed by (stream, id) because ids are
// only unique within a stream. Reset is called once at the start of every
// cycle and never mid-cycle. Set is not safe for concurrent use; the cycle
// that owns it is sequential.
type Set struct {
	seen map[key]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{seen: make(map[key]struct{})}
}

// Seen reports whether id was marked for stream during this cycle.
func (s *Set) Seen(stream models.Stream, id int64) bool {
	_, ok := s.seen[key{stream, id}]
	return ok
}

// Mark records id as processed for stream.
func (s *Set) Mark(stream models.Stream, id int64) {
	s.seen[key{stream, id}] = struct{}{}
}

// Reset forgets everything. Called at cycle start.
func (s *Set) Reset() {
	clear(s.seen)
}

// Len returns the number of marked ids.
func (s *Set) Len() int {
	return len(s.seen)
}
