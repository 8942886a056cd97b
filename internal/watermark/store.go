// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package watermark persists the highest processed event id per stream.
//
// A watermark never decreases. Set with a value at or below the stored one is
// a no-op, so a late or replayed write can never re-admit events that were
// already handed to delivery. A missing key reads as 0, meaning every
// positive id qualifies.
package watermark

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
)

const keyPrefix = "watermark:"

// Store is the monotonic per-stream watermark store. The cycle is the only
// writer, but ancillary jobs read through Snapshot, so read-modify-write
// sequences are serialized.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  zerolog.Logger
}

// NewStore wraps a backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  logging.With().Str("component", "watermark").Logger(),
	}
}

// Key returns the backend key for a stream.
func Key(stream models.Stream) string {
	return keyPrefix + string(stream)
}

// Get returns the persisted watermark, or 0 if none was ever set.
func (s *Store) Get(ctx context.Context, stream models.Stream) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, stream)
}

func (s *Store) load(ctx context.Context, stream models.Stream) (int64, error) {
	v, _, err := s.backend.Load(ctx, Key(stream))
	if err != nil {
		return 0, fmt.Errorf("load watermark %s: %w", stream, err)
	}
	return int64(v), nil //nolint:gosec // ids are written by Set, which rejects negatives
}

// Set advances the watermark for stream to id. Values at or below the
// current watermark are ignored. The write is durable when Set returns; on
// error the stored watermark is unchanged.
func (s *Store) Set(ctx context.Context, stream models.Stream, id int64) error {
	if id < 0 {
		return fmt.Errorf("watermark %s: negative id %d", stream, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx, stream)
	if err != nil {
		return err
	}
	if id <= current {
		if id < current {
			s.logger.Warn().
				Str("stream", string(stream)).
				Int64("current", current).
				Int64("requested", id).
				Msg("Ignoring watermark regression")
		}
		return nil
	}

	if err := s.backend.Save(ctx, Key(stream), uint64(id)); err != nil {
		return fmt.Errorf("save watermark %s: %w", stream, err)
	}
	metrics.Watermark.WithLabelValues(string(stream)).Set(float64(id))

	s.logger.Debug().
		Str("stream", string(stream)).
		Int64("from", current).
		Int64("to", id).
		Msg("Watermark advanced")
	return nil
}

// Snapshot returns the watermark of each stream.
func (s *Store) Snapshot(ctx context.Context, streams []models.Stream) (map[models.Stream]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Stream]int64, len(streams))
	for _, st := range streams {
		v, err := s.load(ctx, st)
		if err != nil {
			return nil, err
		}
		out[st] = v
	}
	return out, nil
}

// Ping checks that the backend is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
