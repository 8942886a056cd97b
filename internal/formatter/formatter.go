// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package formatter renders events and operational notices as chat text.
// All functions are pure.
package formatter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/safetybot/internal/models"
)

// TimeLayout is the event time layout, e.g. "Mar 04 02:15 PM".
const TimeLayout = "Jan 02 03:04 PM"

const kphToMph = 0.621371

// Notes appended to an event message when media could not be attached.
const (
	NoteNoMedia        = "[INFO] No camera media available"
	NoteMediaFailed    = "[WARNING] Videos could not be downloaded"
	NoteMediaTooLarge  = "⚠️ Videos too large for Telegram"
	NoteUploadFailed   = "[WARNING] Video upload failed"
	unknownVehicleText = "N/A"
)

// ErrMalformedEvent is returned when an event lacks a field the message
// cannot be built without.
var ErrMalformedEvent = errors.New("malformed event")

// Format renders the message for one event.
func Format(ev models.Event) (string, error) {
	if ev.Stream == "" {
		return "", fmt.Errorf("%w: event %d has no stream", ErrMalformedEvent, ev.ID)
	}
	if ev.Severity == "" {
		return "", fmt.Errorf("%w: %s has no severity", ErrMalformedEvent, ev.Key())
	}
	when, err := eventTime(ev)
	if err != nil {
		return "", err
	}

	vehicle := ev.Payload.VehicleNumber
	if vehicle == "" {
		vehicle = unknownVehicleText
	}

	var b strings.Builder
	if ev.Stream == models.StreamSpeeding {
		b.WriteString("Speeding\n")
		fmt.Fprintf(&b, "🚚: %s\n%s\n", vehicle, when)
		fmt.Fprintf(&b, "Vehicle speed range: %s–%s mph\n", mph(ev.Payload.MinSpeedKph), mph(ev.Payload.MaxSpeedKph))
		fmt.Fprintf(&b, "Avg. exceeded: +%s mph\n", mph(ev.Payload.AvgOverSpeedKph))
	} else {
		fmt.Fprintf(&b, "%s\n🚚: %s\n%s\n", ev.Stream.Title(), vehicle, when)
	}
	fmt.Fprintf(&b, "Severity: %s", ev.Severity)
	return b.String(), nil
}

// WithNote appends a media note to an event message.
func WithNote(msg, note string) string {
	return msg + "\n\n" + note
}

// VideoCaption captions an uploaded video, e.g. "...\n\n[VIDEO] Front Facing".
// An empty msg yields the tag alone, used for follow-up uploads.
func VideoCaption(msg, label string) string {
	return caption(msg, "[VIDEO] "+label)
}

// PhotoCaption captions an uploaded image, e.g. "...\n\n[PHOTO] Screenshot".
func PhotoCaption(msg, label string) string {
	return caption(msg, "[PHOTO] "+label)
}

func caption(msg, tag string) string {
	if msg == "" {
		return tag
	}
	return msg + "\n\n" + tag
}

func eventTime(ev models.Event) (string, error) {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp.Format(TimeLayout), nil
	}
	if ev.Payload.RawTimestamp != "" {
		return ev.Payload.RawTimestamp, nil
	}
	return "", fmt.Errorf("%w: %s has no timestamp", ErrMalformedEvent, ev.Key())
}

func mph(kph *float64) string {
	if kph == nil || *kph == 0 {
		return "0"
	}
	v := math.Round(*kph*kphToMph*10) / 10
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// CriticalAlert is sent once when consecutive cycle failures reach the
// threshold. The error text is truncated to 200 characters.
func CriticalAlert(failures int, lastErr error) string {
	msg := "unknown"
	if lastErr != nil {
		msg = truncate(lastErr.Error(), 200)
	}
	return fmt.Sprintf("🚨 CRITICAL: SafetyBot has failed %d consecutive times.\n\nLast error: %s\n\nPlease check the system immediately!", failures, msg)
}

// AuthAlert is sent once per stream when the telemetry API rejects the
// credentials.
func AuthAlert(stream models.Stream, err error) string {
	msg := "credentials rejected"
	if err != nil {
		msg = truncate(err.Error(), 200)
	}
	return fmt.Sprintf("🚨 CRITICAL: Telemetry API authentication failed for %s events.\n\n%s\n\nUpdate the API key; polling continues for other streams.", stream.Title(), msg)
}

// CycleSummary reports a cycle in which some deliveries failed.
func CycleSummary(processed, errs int, duration time.Duration) string {
	return fmt.Sprintf("⚠️ SafetyBot Health Report\n\nProcessed: %d events\nErrors: %d\nDuration: %.1fs", processed, errs, duration.Seconds())
}

// StartupMessage announces that polling has begun.
func StartupMessage(interval time.Duration, streams []models.Stream) string {
	names := make([]string, 0, len(streams))
	for _, s := range streams {
		names = append(names, s.Title())
	}
	return fmt.Sprintf("🤖 SafetyBot Started\n\n🔄 Check Interval: %s\n📊 Monitoring: %s\n🎯 Severity Filter: Medium, High, Critical\n\n🚀 Ready to monitor for safety events...",
		minutes(interval), strings.Join(names, ", "))
}

// HealthSnapshot is the input to HealthReport.
type HealthSnapshot struct {
	Healthy             bool
	LastSuccess         time.Time // zero means never
	ConsecutiveFailures int
	APIReachable        bool
	ChatReachable       bool
	CheckInterval       time.Duration
	Now                 time.Time
}

// HealthReport renders the periodic health report.
func HealthReport(s HealthSnapshot) string {
	overall := "✅ Overall Status: Healthy"
	if !s.Healthy {
		overall = "❌ Overall Status: Issues Detected"
	}
	last := "Never"
	if !s.LastSuccess.IsZero() {
		last = fmt.Sprintf("%.1f minutes ago", s.Now.Sub(s.LastSuccess).Minutes())
	}

	var b strings.Builder
	b.WriteString("🏥 SafetyBot Health Report\n\n")
	b.WriteString(overall + "\n")
	fmt.Fprintf(&b, "📊 Last Successful Check: %s\n", last)
	fmt.Fprintf(&b, "🔄 Consecutive Failures: %d\n", s.ConsecutiveFailures)
	fmt.Fprintf(&b, "🌐 API Access: %s\n", mark(s.APIReachable))
	fmt.Fprintf(&b, "📱 Telegram Access: %s\n", mark(s.ChatReachable))
	fmt.Fprintf(&b, "⏰ Check Interval: %s\n\n", minutes(s.CheckInterval))
	fmt.Fprintf(&b, "📅 Report Time: %s", s.Now.Format("2006-01-02 15:04:05"))
	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func minutes(d time.Duration) string {
	m := int(d / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	if m == 0 && d > 0 {
		return d.String()
	}
	return strconv.Itoa(m) + " minutes"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
