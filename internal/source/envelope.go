// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package source

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/models"
)

// Envelope describes where the event list lives in a response body.
//
//	{"speeding_events": [{"speeding_event": {...}}]}          Container + Wrapper
//	{"data": [{...}]}                                         Container only
type Envelope struct {
	// Container is the top-level key holding the event array.
	Container string
	// Wrapper is the per-item key around the event object. Items without
	// the wrapper key are treated as bare event objects.
	Wrapper string
}

var (
	SpeedingEnvelope    = Envelope{Container: "speeding_events", Wrapper: "speeding_event"}
	PerformanceEnvelope = Envelope{Container: "driver_performance_events", Wrapper: "driver_performance_event"}
)

// DataEnvelope returns the generic {"data": [...]} shape. wrapper may be empty.
func DataEnvelope(wrapper string) Envelope {
	return Envelope{Container: "data", Wrapper: wrapper}
}

// rawEvent is the provider's event object. Both feeds share these fields.
type rawEvent struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Metadata  struct {
		Severity string `json:"severity"`
	} `json:"metadata"`
	Vehicle *struct {
		Number string `json:"number"`
	} `json:"vehicle"`
	Driver *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"driver"`
	Lat               *float64 `json:"lat"`
	Lon               *float64 `json:"lon"`
	MinVehicleSpeed   *float64 `json:"min_vehicle_speed"`
	MaxVehicleSpeed   *float64 `json:"max_vehicle_speed"`
	AvgOverSpeedInKph *float64 `json:"avg_over_speed_in_kph"`
	CameraMedia       *struct {
		Available          bool `json:"available"`
		DownloadableVideos struct {
			FrontFacingPlainURL  string `json:"front_facing_plain_url"`
			DriverFacingPlainURL string `json:"driver_facing_plain_url"`
		} `json:"downloadable_videos"`
	} `json:"camera_media"`
}

// Normalize decodes body using env and returns events for stream.
//
// Bodies that are not JSON objects are Malformed. A missing or null
// container is an empty result. A container that is not an array, or
// items that cannot be decoded, are dropped with a warning so that upstream
// schema drift never aborts a cycle.
func Normalize(body []byte, env Envelope, stream models.Stream, logger zerolog.Logger) ([]models.Event, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, models.NewFetchError(models.FetchMalformed, stream, 0, fmt.Errorf("decode envelope: %w", err))
	}

	raw, ok := top[env.Container]
	if !ok || isNull(raw) {
		return []models.Event{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Warn().
			Str("stream", string(stream)).
			Str("container", env.Container).
			Err(err).
			Msg("Unexpected event container shape, treating as empty")
		return []models.Event{}, nil
	}

	events := make([]models.Event, 0, len(items))
	for i, item := range items {
		ev, err := decodeItem(item, env.Wrapper)
		if err != nil {
			logger.Warn().Str("stream", string(stream)).Int("index", i).Err(err).Msg("Skipping undecodable event")
			continue
		}
		if ev.ID <= 0 {
			logger.Warn().Str("stream", string(stream)).Int("index", i).Msg("Skipping event without id")
			continue
		}
		if ev.Type != "" && stream.IsPerformance() && !strings.EqualFold(ev.Type, string(stream)) {
			logger.Debug().Str("stream", string(stream)).Str("type", ev.Type).Int64("id", ev.ID).Msg("Skipping event of another subtype")
			continue
		}
		events = append(events, toEvent(ev, stream))
	}
	return events, nil
}

func decodeItem(item json.RawMessage, wrapper string) (*rawEvent, error) {
	if wrapper != "" {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(item, &wrapped); err != nil {
			return nil, err
		}
		if inner, ok := wrapped[wrapper]; ok {
			item = inner
		}
	}

	var ev rawEvent
	if err := json.Unmarshal(item, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func toEvent(r *rawEvent, stream models.Stream) models.Event {
	ts := r.EndTime
	if ts == "" {
		ts = r.StartTime
	}

	p := models.Payload{
		Latitude:        r.Lat,
		Longitude:       r.Lon,
		MinSpeedKph:     r.MinVehicleSpeed,
		MaxSpeedKph:     r.MaxVehicleSpeed,
		AvgOverSpeedKph: r.AvgOverSpeedInKph,
		RawTimestamp:    ts,
		ProviderSubtype: r.Type,
	}
	if r.Vehicle != nil {
		p.VehicleNumber = r.Vehicle.Number
	}
	if r.Driver != nil {
		p.DriverName = strings.TrimSpace(r.Driver.FirstName + " " + r.Driver.LastName)
	}
	if r.CameraMedia != nil {
		p.MediaAvailable = r.CameraMedia.Available
		p.FrontFacingURL = r.CameraMedia.DownloadableVideos.FrontFacingPlainURL
		p.DriverFacingURL = r.CameraMedia.DownloadableVideos.DriverFacingPlainURL
	}

	return models.Event{
		ID:        r.ID,
		Stream:    stream,
		Severity:  models.ParseSeverity(r.Metadata.Severity),
		Timestamp: parseTime(ts),
		Payload:   p,
	}
}

// parseTime accepts RFC 3339 with or without fractional seconds. Unparseable
// values yield the zero time; the formatter falls back to the raw string.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
