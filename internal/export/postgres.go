// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/safetybot/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS delivered_events (
	stream        TEXT             NOT NULL,
	event_id      BIGINT           NOT NULL,
	severity      TEXT             NOT NULL,
	event_time    TIMESTAMPTZ,
	processed_at  TIMESTAMPTZ      NOT NULL,
	vehicle       TEXT,
	driver        TEXT,
	outcome       TEXT             NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	max_speed_kph DOUBLE PRECISION,
	PRIMARY KEY (stream, event_id)
)`

// PostgresArchive stores rows in a shared Postgres database, so several
// instances publishing over NATS can feed one archive.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresArchive, error) {
	if dsn == "" {
		return nil, errors.New("postgres archive requires a DSN")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}
	return &PostgresArchive{pool: pool}, nil
}

// Append implements Archive.
func (a *PostgresArchive) Append(ctx context.Context, row Row) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO delivered_events
			(stream, event_id, severity, event_time, processed_at, vehicle, driver, outcome, latitude, longitude, max_speed_kph)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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
func (a *PostgresArchive) Rows(ctx context.Context, from, to time.Time) ([]Row, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT stream, event_id, severity, event_time, processed_at, vehicle, driver, outcome, latitude, longitude, max_speed_kph
		FROM delivered_events
		WHERE processed_at >= $1 AND processed_at < $2
		ORDER BY processed_at, stream, event_id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanPostgresRow(rows)
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

func scanPostgresRow(s scanner) (Row, error) {
	var (
		row              Row
		stream, severity string
		eventTime        *time.Time
		vehicle, driver  *string
	)
	if err := s.Scan(&stream, &row.EventID, &severity, &eventTime, &row.ProcessedAt,
		&vehicle, &driver, &row.Outcome, &row.Latitude, &row.Longitude, &row.MaxSpeedKph); err != nil {
		return Row{}, fmt.Errorf("scan archive row: %w", err)
	}
	row.Stream = models.Stream(stream)
	row.Severity = models.Severity(severity)
	row.ProcessedAt = row.ProcessedAt.UTC()
	if eventTime != nil {
		row.EventTime = eventTime.UTC()
	}
	if vehicle != nil {
		row.Vehicle = *vehicle
	}
	if driver != nil {
		row.Driver = *driver
	}
	return row, nil
}

// Ping implements Archive.
func (a *PostgresArchive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close implements Archive.
func (a *PostgresArchive) Close() error {
	a.pool.Close()
	return nil
}
