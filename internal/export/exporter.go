// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
)

// Sender is the slice of delivery.Channel the exporter needs.
type Sender interface {
	SendText(ctx context.Context, text string) error
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// RowReader reads archived rows. Every Archive is one.
type RowReader interface {
	Rows(ctx context.Context, from, to time.Time) ([]Row, error)
}

// Exporter sends one day of archived rows as a document.
type Exporter struct {
	reader   RowReader
	renderer Renderer
	sender   Sender
	loc      *time.Location
	logger   zerolog.Logger
}

// NewExporter creates an Exporter. Days are calendar days in loc (UTC when nil).
func NewExporter(reader RowReader, renderer Renderer, sender Sender, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		reader:   reader,
		renderer: renderer,
		sender:   sender,
		loc:      loc,
		logger:   logging.With().Str("component", "export").Logger(),
	}
}

// DayBounds returns the start and end of day's calendar day in loc.
func DayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	d := day.In(loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

// Filename is the document name for day.
func Filename(day time.Time, ext string) string {
	return fmt.Sprintf("safetybot_events_%s.%s", day.Format("2006-01-02"), ext)
}

// Run exports the calendar day containing day. A day without rows sends a
// short text instead of an empty document.
func (e *Exporter) Run(ctx context.Context, day time.Time) (int, error) {
	from, to := DayBounds(day, e.loc)

	rows, err := e.reader.Rows(ctx, from, to)
	if err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("load export rows: %w", err)
	}

	label := from.Format("Mon, Jan 02 2006")
	if len(rows) == 0 {
		if err := e.sender.SendText(ctx, fmt.Sprintf("📊 Daily safety export for %s: no events.", label)); err != nil {
			metrics.ExportRuns.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("send empty export notice: %w", err)
		}
		metrics.ExportRuns.WithLabelValues("empty").Inc()
		return 0, nil
	}

	doc, err := e.renderer.Render(rows)
	if err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("render export: %w", err)
	}

	caption := fmt.Sprintf("📊 Daily safety export for %s: %d events", label, len(rows))
	if err := e.sender.SendDocument(ctx, Filename(from, e.renderer.Extension()), doc, caption); err != nil {
		metrics.ExportRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("send export: %w", err)
	}

	metrics.ExportRuns.WithLabelValues("sent").Inc()
	e.logger.Info().Str("day", from.Format("2006-01-02")).Int("rows", len(rows)).Msg("Daily export sent")
	return len(rows), nil
}
