// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Renderer turns archive rows into a document.
type Renderer interface {
	Render(rows []Row) ([]byte, error)
	// Extension is the file extension without the dot, e.g. "csv".
	Extension() string
}

var csvHeader = []string{
	"processed_at", "stream", "event_id", "severity", "event_time",
	"vehicle", "driver", "outcome", "latitude", "longitude", "max_speed_mph",
}

// CSVRenderer renders rows as RFC 4180 CSV with a header line. Times are
// written in Location (UTC when nil).
type CSVRenderer struct {
	Location *time.Location
}

// Extension implements Renderer.
func (CSVRenderer) Extension() string { return "csv" }

// Render implements Renderer.
func (r CSVRenderer) Render(rows []Row) ([]byte, error) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.ProcessedAt.In(loc).Format(time.RFC3339),
			string(row.Stream),
			strconv.FormatInt(row.EventID, 10),
			string(row.Severity),
			formatTime(row.EventTime, loc),
			row.Vehicle,
			row.Driver,
			row.Outcome,
			formatFloat(row.Latitude, 6, 1),
			formatFloat(row.Longitude, 6, 1),
			formatFloat(row.MaxSpeedKph, 1, kphToMph),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %s:%d: %w", row.Stream, row.EventID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

const kphToMph = 0.621371

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func formatFloat(f *float64, prec int, scale float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f*scale, 'f', prec, 64)
}
