// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"hourly", "0 * * * *", false},
		{"daily export", "0 6 * * *", false},
		{"every 5 minutes", "*/5 * * * *", false},
		{"weekdays", "0 9 * * 1-5", false},
		{"list", "0,15,30,45 * * * *", false},
		{"stepped range", "0-30/10 * * * *", false},
		{"sunday as 7", "0 0 * * 7", false},
		{"too few fields", "0 9 * *", true},
		{"too many fields", "0 9 * * * *", true},
		{"minute out of range", "60 * * * *", true},
		{"hour out of range", "0 24 * * *", true},
		{"zero day", "0 0 0 * *", true},
		{"zero step", "*/0 * * * *", true},
		{"inverted range", "0 5-3 * * *", true},
		{"garbage", "a * * * *", true},
		{"start past max with step", "70/5 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCron(tt.expr, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCronNext(t *testing.T) {
	t.Parallel()

	// Tuesday.
	base := time.Date(2025, time.March, 4, 14, 17, 30, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{"hourly", "0 * * * *", time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)},
		{"every 15 minutes", "*/15 * * * *", time.Date(2025, 3, 4, 14, 30, 0, 0, time.UTC)},
		{"daily later today", "0 18 * * *", time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)},
		{"daily tomorrow", "0 6 * * *", time.Date(2025, 3, 5, 6, 0, 0, 0, time.UTC)},
		{"next monday", "0 9 * * 1", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"sunday as 7", "0 0 * * 7", time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"first of month", "0 0 1 * *", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"year rollover", "0 0 1 1 *", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"dom or dow", "0 0 15 * 5", time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)},
		{"leap day", "0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := ParseCron(tt.expr, nil)
			if err != nil {
				t.Fatalf("ParseCron: %v", err)
			}
			if got := c.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next(%s) = %s, want %s", base, got, tt.want)
			}
		})
	}
}

func TestCronNextStrictlyAfter(t *testing.T) {
	t.Parallel()

	c, _ := ParseCron("0 * * * *", nil)
	on := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	if got := c.Next(on); !got.Equal(on.Add(time.Hour)) {
		t.Errorf("expected next hour, got %s", got)
	}
}

func TestCronNextTimezone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*60*60)
	c, err := ParseCron("0 6 * * *", loc)
	if err != nil {
		t.Fatal(err)
	}
	after := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) // 05:00 EST
	want := time.Date(2025, 3, 4, 11, 0, 0, 0, time.UTC)  // 06:00 EST
	if got := c.Next(after); !got.Equal(want) {
		t.Errorf("Next = %s, want %s", got, want)
	}
}

func TestCronImpossibleDate(t *testing.T) {
	t.Parallel()

	c, err := ParseCron("0 0 31 2 *", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Next(time.Now()); !got.IsZero() {
		t.Errorf("expected zero time for Feb 31, got %s", got)
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()

	s := Every(5 * time.Minute)
	base := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	if got := s.Next(base); !got.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("unexpected next %s", got)
	}
	if s.String() != "every 5m0s" {
		t.Errorf("unexpected string %q", s.String())
	}
}
