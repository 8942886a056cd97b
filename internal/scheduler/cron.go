// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// bitset holds the allowed values of one cron field (all fields fit in 64 bits).
type bitset uint64

func (b bitset) has(v int) bool { return b&(1<<uint(v)) != 0 }

func (b bitset) count() int { return bits.OnesCount64(uint64(b)) }

func span(lo, hi, step int) bitset {
	var b bitset
	for v := lo; v <= hi; v += step {
		b |= 1 << uint(v)
	}
	return b
}

// Cron is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
type Cron struct {
	expr     string
	minutes  bitset
	hours    bitset
	days     bitset
	months   bitset
	weekdays bitset
	loc      *time.Location
}

// ParseCron parses a standard 5-field cron expression evaluated in loc
// (UTC when nil).
//
// Supported syntax: "*", "n", "n-m", "a,b,c", "*/s", "n-m/s", "n/s".
// Day-of-week accepts 0-7 with both 0 and 7 meaning Sunday.
//
//	"0 * * * *"   hourly, on the hour
//	"0 6 * * *"   daily at 06:00
//	"*/15 * * * *" every 15 minutes
func ParseCron(expr string, loc *time.Location) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	limits := [5]struct {
		name   string
		lo, hi int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 7},
	}
	var sets [5]bitset
	for i, f := range fields {
		b, err := parseField(f, limits[i].lo, limits[i].hi)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", limits[i].name, err)
		}
		sets[i] = b
	}

	weekdays := sets[4]
	if weekdays.has(7) {
		weekdays = (weekdays &^ (1 << 7)) | 1
	}

	return &Cron{
		expr:     expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: weekdays,
		loc:      loc,
	}, nil
}

// String returns the source expression.
func (c *Cron) String() string {
	return c.expr
}

// Next returns the first matching minute strictly after t, or the zero
// time if none exists within four years.
func (c *Cron) Next(after time.Time) time.Time {
	t := after.In(c.loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		switch {
		case !c.months.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, c.loc)
		case !c.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc)
		case !c.hours.has(t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, c.loc)
		case !c.minutes.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

// dayMatches ORs day-of-month and day-of-week when both are restricted,
// as classic cron does.
func (c *Cron) dayMatches(t time.Time) bool {
	domAny := c.days.count() == 31
	dowAny := c.weekdays.count() == 7
	dom := c.days.has(t.Day())
	dow := c.weekdays.has(int(t.Weekday()))

	switch {
	case domAny && dowAny:
		return true
	case domAny:
		return dow
	case dowAny:
		return dom
	default:
		return dom || dow
	}
}

func parseField(field string, lo, hi int) (bitset, error) {
	var out bitset
	for _, part := range strings.Split(field, ",") {
		b, err := parsePart(part, lo, hi)
		if err != nil {
			return 0, err
		}
		out |= b
	}
	return out, nil
}

func parsePart(part string, lo, hi int) (bitset, error) {
	rangeExpr, stepExpr, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepExpr)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step value: %s", stepExpr)
		}
		step = s
	}

	start, end := lo, hi
	switch {
	case rangeExpr == "*":
	case strings.Contains(rangeExpr, "-"):
		a, b, _ := strings.Cut(rangeExpr, "-")
		var err error
		if start, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("invalid range start: %s", a)
		}
		if end, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("invalid range end: %s", b)
		}
		if start > end {
			return 0, fmt.Errorf("invalid range: %d-%d", start, end)
		}
	default:
		v, err := strconv.Atoi(rangeExpr)
		if err != nil {
			return 0, fmt.Errorf("invalid value: %s", rangeExpr)
		}
		start = v
		if !hasStep {
			end = v
		}
	}
	if start < lo || end > hi || start > end {
		return 0, fmt.Errorf("value out of range: %s (allowed %d-%d)", part, lo, hi)
	}
	return span(start, end, step), nil
}
