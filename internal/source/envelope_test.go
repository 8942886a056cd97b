// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package source

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/models"
)

var quiet = zerolog.New(io.Discard)

const speedingBody = `{
  "speeding_events": [
    {"speeding_event": {
      "id": 101,
      "end_time": "2026-03-04T15:30:00Z",
      "metadata": {"severity": "high"},
      "vehicle": {"number": "TRK-12"},
      "driver": {"first_name": "Ada", "last_name": "Lovelace"},
      "min_vehicle_speed": 100,
      "max_vehicle_speed": 120.5,
      "avg_over_speed_in_kph": 15
    }},
    {"speeding_event": {"id": 102, "metadata": {"severity": "low"}}}
  ]
}`

func TestNormalizeSpeeding(t *testing.T) {
	t.Parallel()

	events, err := Normalize([]byte(speedingBody), SpeedingEnvelope, models.StreamSpeeding, quiet)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	ev := events[0]
	if ev.ID != 101 || ev.Stream != models.StreamSpeeding || ev.Severity != models.SeverityHigh {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !ev.Timestamp.Equal(time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
	if ev.Payload.VehicleNumber != "TRK-12" || ev.Payload.DriverName != "Ada Lovelace" {
		t.Errorf("payload = %+v", ev.Payload)
	}
	if ev.Payload.MaxSpeedKph == nil || *ev.Payload.MaxSpeedKph != 120.5 {
		t.Errorf("max speed not decoded")
	}
	if events[1].Severity != models.SeverityLow {
		t.Errorf("second severity = %q", events[1].Severity)
	}
}

func TestNormalizePerformance(t *testing.T) {
	t.Parallel()

	body := `{"driver_performance_events": [
	  {"driver_performance_event": {
	    "id": 7, "type": "hard_brake", "start_time": "2026-03-04T10:00:00Z",
	    "metadata": {"severity": "critical"},
	    "camera_media": {"available": true, "downloadable_videos": {
	      "front_facing_plain_url": "https://cdn/front.mp4",
	      "driver_facing_plain_url": "https://cdn/driver.mp4"}}
	  }},
	  {"driver_performance_event": {"id": 8, "type": "crash", "metadata": {"severity": "critical"}}}
	]}`

	events, err := Normalize([]byte(body), PerformanceEnvelope, models.StreamHardBrake, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected other subtype to be dropped, got %d events", len(events))
	}
	p := events[0].Payload
	if !p.MediaAvailable || p.FrontFacingURL != "https://cdn/front.mp4" || p.DriverFacingURL != "https://cdn/driver.mp4" {
		t.Errorf("camera media not decoded: %+v", p)
	}
	if p.RawTimestamp != "2026-03-04T10:00:00Z" {
		t.Errorf("start_time fallback not used: %q", p.RawTimestamp)
	}
}

func TestNormalizeDataEnvelope(t *testing.T) {
	t.Parallel()

	body := `{"data": [
	  {"id": 1, "metadata": {"severity": "medium"}},
	  {"speeding_event": {"id": 2, "metadata": {"severity": "high"}}}
	]}`

	events, err := Normalize([]byte(body), DataEnvelope("speeding_event"), models.StreamSpeeding, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].ID != 1 || events[1].ID != 2 {
		t.Errorf("expected bare and wrapped items, got %+v", events)
	}
}

func TestNormalizeDegradesGracefully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing container", `{"meta": {}}`, 0},
		{"null container", `{"speeding_events": null}`, 0},
		{"empty container", `{"speeding_events": []}`, 0},
		{"container is object", `{"speeding_events": {"id": 1}}`, 0},
		{"container is string", `{"speeding_events": "oops"}`, 0},
		{"item without id", `{"speeding_events": [{"speeding_event": {"metadata": {}}}]}`, 0},
		{"item not an object", `{"speeding_events": [42, {"speeding_event": {"id": 5}}]}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events, err := Normalize([]byte(tt.body), SpeedingEnvelope, models.StreamSpeeding, quiet)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if events == nil {
				t.Fatal("expected non-nil empty slice")
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestNormalizeInvalidJSONIsMalformed(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`<html>oops</html>`, `[1,2,3]`, ``} {
		_, err := Normalize([]byte(body), SpeedingEnvelope, models.StreamSpeeding, quiet)
		if !errors.Is(err, models.ErrMalformed) {
			t.Errorf("body %q: expected malformed error, got %v", body, err)
		}
	}
}
