// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package export keeps an archive of every accepted event and sends a daily
// CSV of it to the chat channel.
//
// Rows arrive from the event bus (see internal/bus) and are written by the
// Accumulator. The archive is DuckDB by default, or Postgres when a DSN is
// configured. Exporter reads one calendar day back out and renders it.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/safetybot/internal/models"
)

// Driver names accepted by Open.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned by Open for an unsupported driver.
var ErrUnknownDriver = errors.New("unknown archive driver")

// Row is one archived delivery.
type Row struct {
	ProcessedAt time.Time
	Stream      models.Stream
	EventID     int64
	Severity    models.Severity
	EventTime   time.Time
	Vehicle     string
	Driver      string
	Outcome     string
	Latitude    *float64
	Longitude   *float64
	MaxSpeedKph *float64
}

// RowFromRecord flattens a bus record.
func RowFromRecord(rec models.DeliveryRecord) Row {
	ev := rec.Event
	return Row{
		ProcessedAt: rec.ProcessedAt.UTC(),
		Stream:      ev.Stream,
		EventID:     ev.ID,
		Severity:    ev.Severity,
		EventTime:   ev.Timestamp.UTC(),
		Vehicle:     ev.Payload.VehicleNumber,
		Driver:      ev.Payload.DriverName,
		Outcome:     rec.Outcome,
		Latitude:    ev.Payload.Latitude,
		Longitude:   ev.Payload.Longitude,
		MaxSpeedKph: ev.Payload.MaxSpeedKph,
	}
}

// Archive stores rows. Append ignores a (stream, event id) pair it already
// holds. Rows returns rows processed in [from, to), oldest first.
type Archive interface {
	Append(ctx context.Context, row Row) error
	Rows(ctx context.Context, from, to time.Time) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects the archive backend.
type Config struct {
	Driver string
	// Path is the DuckDB database file. Empty means in-memory.
	Path string
	// DSN is the Postgres connection string.
	DSN string
	// MaxConns bounds the Postgres pool. Default 4.
	MaxConns int32
}

// Open opens the configured archive and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (Archive, error) {
	switch cfg.Driver {
	case "", DriverDuckDB:
		return OpenDuckDB(ctx, cfg.Path)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
