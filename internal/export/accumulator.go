// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package export

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
)

// Consumer delivers bus records to a handler until ctx ends. *bus.Bus
// implements it.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, models.DeliveryRecord) error) error
}

// Accumulator appends every consumed record to the archive. Writes are
// serialized because the command listener may run an export concurrently.
type Accumulator struct {
	mu      sync.Mutex
	archive Archive
	logger  zerolog.Logger
	count   int
}

// NewAccumulator wraps archive.
func NewAccumulator(archive Archive) *Accumulator {
	return &Accumulator{
		archive: archive,
		logger:  logging.With().Str("component", "export").Logger(),
	}
}

// Handle appends one record. It matches the bus handler signature.
func (a *Accumulator) Handle(ctx context.Context, rec models.DeliveryRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.archive.Append(ctx, RowFromRecord(rec)); err != nil {
		return err
	}
	a.count++
	metrics.ExportRows.Inc()
	a.logger.Debug().Str("event", rec.Event.Key()).Str("outcome", rec.Outcome).Msg("Archived delivery")
	return nil
}

// Run consumes records from c until ctx is canceled.
func (a *Accumulator) Run(ctx context.Context, c Consumer) error {
	return c.Consume(ctx, a.Handle)
}

// Count returns how many records this process has archived.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}
