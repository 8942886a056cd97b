// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package eligibility decides which fetched events are new and admissible.
package eligibility

import (
	"sort"

	"github.com/tomtom215/safetybot/internal/models"
)

// Deduplicator is the subset of the cycle dedup set the filter needs.
type Deduplicator interface {
	Seen(stream models.Stream, id int64) bool
	Mark(stream models.Stream, id int64)
}

// Filter returns the events that are newer than watermark, have an
// admissible severity (medium, high, critical) and were not already seen
// this cycle. Accepted events are marked in dedup. The result is sorted by
// ascending id, which is the delivery order.
//
// The severity threshold is a fixed business rule and is not configurable.
func Filter(events []models.Event, watermark int64, dedup Deduplicator) []models.Event {
	accepted := make([]models.Event, 0, len(events))
	for i := range events {
		ev := events[i]
		if ev.ID <= watermark {
			continue
		}
		if !ev.Severity.Admissible() {
			continue
		}
		if dedup.Seen(ev.Stream, ev.ID) {
			continue
		}
		dedup.Mark(ev.Stream, ev.ID)
		accepted = append(accepted, ev)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].ID < accepted[j].ID
	})
	return accepted
}

// MaxID returns the highest id in events, or 0 for an empty slice.
func MaxID(events []models.Event) int64 {
	var highest int64
	for i := range events {
		if events[i].ID > highest {
			highest = events[i].ID
		}
	}
	return highest
}
