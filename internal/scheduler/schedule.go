// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package scheduler

import (
	"fmt"
	"time"
)

// Schedule yields the next fire time after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// Interval fires at a fixed period.
type Interval time.Duration

// Every returns an Interval schedule.
func Every(d time.Duration) Interval {
	return Interval(d)
}

// Next implements Schedule.
func (i Interval) Next(after time.Time) time.Time {
	return after.Add(time.Duration(i))
}

func (i Interval) String() string {
	return fmt.Sprintf("every %s", time.Duration(i))
}
