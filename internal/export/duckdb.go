// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/models"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS delivered_events (
	stream        VARCHAR   NOT NULL,
	event_id      BIGINT    NOT NULL,
	severity      VARCHAR   NOT NULL,
	event_time    TIMESTAMP,
	processed_at  TIMESTAMP NOT NULL,
	vehicle       VARCHAR,
	driver        VARCHAR,
	outcome       VARCHAR   NOT NULL,
	latitude      DOUBLE,
	longitude     DOUBLE,
	max_speed_kph DOUBLE,
	PRIMARY KEY (stream, event_id)
)`

// DuckDBArchive is the default Archive.
type DuckDBArchive struct {
	conn *sql.DB
}

// OpenDuckDB opens (or creates) the archive at path.
func OpenDuckDB(ctx context.Context, path string) (*DuckDBArchive, error) {
	if path != "" {
		// 0750 keeps the archive private to the service user
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
			}
		}
	}

	// Extensions are not needed; disabling autoload avoids network access.
	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := conn.ExecContext(ctx, duckdbSchema); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}
	return &DuckDBArchive{conn: conn}, nil
}

// Append implements Archive.
func (a *DuckDBArchive) Append(ctx context.Context, row Row) error {
	_, err := a.conn.ExecContext(ctx, `
		INSERT INTO delivered_events
			(stream, event_id, severity, event_time, processed_at, vehicle, driver, outcome, latitude, longitude, max_speed_kph)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		string(row.Stream), row.EventID, string(row.Severity), nullTime(row.EventTime), row.ProcessedAt.UTC(),
		row.Vehicle, row.Driver, row.Outcome, nullFloat(row.Latitude), nullFloat(row.Longitude), nullFloat(row.MaxSpeedKph),
	)
	if err != nil {
		return fmt.Errorf("append %s:%d: %w", row.Stream, row.EventID, err)
	}
	return nil
}

// Rows implements Archive.
func (a *DuckDBArchive) Rows(ctx context.Context, from, to time.Time) ([]Row, error) {
	rows, err := a.conn.QueryContext(ctx, `
		SELECT stream, event_id, severity, event_time, processed_at, vehicle, driver, outcome, latitude, longitude, max_speed_kph
		FROM delivered_events
		WHERE processed_at >= ? AND processed_at < ?
		ORDER BY processed_at, stream, event_id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return out, nil
}

// Ping implements Archive.
func (a *DuckDBArchive) Ping(ctx context.Context) error {
	return a.conn.PingContext(ctx)
}

// Close implements Archive.
func (a *DuckDBArchive) Close() error {
	return a.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
	var (
		row                 Row
		stream, severity    string
		eventTime           sql.NullTime
		vehicle, driver     sql.NullString
		lat, lon, maxSpeedK sql.NullFloat64
	)
	if err := s.Scan(&stream, &row.EventID, &severity, &eventTime, &row.ProcessedAt,
		&vehicle, &driver, &row.Outcome, &lat, &lon, &maxSpeedK); err != nil {
		return Row{}, fmt.Errorf("scan archive row: %w", err)
	}
	row.Stream = models.Stream(stream)
	row.Severity = models.Severity(severity)
	row.ProcessedAt = row.ProcessedAt.UTC()
	if eventTime.Valid {
		row.EventTime = eventTime.Time.UTC()
	}
	row.Vehicle = vehicle.String
	row.Driver = driver.String
	row.Latitude = floatPtr(lat)
	row.Longitude = floatPtr(lon)
	row.MaxSpeedKph = floatPtr(maxSpeedK)
	return row, nil
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close archive connection")
	}
}
