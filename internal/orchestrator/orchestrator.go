// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package orchestrator runs poll cycles: fetch every stream, filter, persist
// the watermark, deliver, and escalate persistent failures.
//
// State machine:
//
//	Idle --RunCycle--> Running --(done or panic)--> Idle
//
// A RunCycle call that finds the orchestrator Running returns immediately
// without queueing.
//
// The watermark for a stream is persisted before any of its events are
// delivered. A delivery that fails after that point is not retried in a
// later cycle (at-most-once delivery).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/dedup"
	"github.com/tomtom215/safetybot/internal/delivery"
	"github.com/tomtom215/safetybot/internal/eligibility"
	"github.com/tomtom215/safetybot/internal/formatter"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
	"github.com/tomtom215/safetybot/internal/source"
)

// State is the orchestrator run state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Cycle results.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	// ResultAborted is a cycle cut short by cancellation, e.g. shutdown.
	ResultAborted = "aborted"
)

// ErrAllStreamsFailed marks a cycle in which no stream could be fetched.
var ErrAllStreamsFailed = errors.New("all streams failed")

// WatermarkStore persists per-stream watermarks.
type WatermarkStore interface {
	Get(ctx context.Context, stream models.Stream) (int64, error)
	Set(ctx context.Context, stream models.Stream, id int64) error
}

// Deliverer sends events and operational notices.
type Deliverer interface {
	Deliver(ctx context.Context, ev models.Event) delivery.Outcome
	Notify(ctx context.Context, text string) error
}

// Publisher receives a record of every accepted event. Optional.
type Publisher interface {
	PublishDelivery(ctx context.Context, rec models.DeliveryRecord) error
}

// Config configures the orchestrator.
type Config struct {
	// EventPause is the pause between consecutive deliveries. Default 3s.
	EventPause time.Duration

	// FailureThreshold is the number of consecutive failed cycles that
	// triggers the critical alert. Default 5.
	FailureThreshold int

	// SummaryOnErrors sends a cycle summary when any delivery failed.
	SummaryOnErrors bool
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		EventPause:       3 * time.Second,
		FailureThreshold: 5,
		SummaryOnErrors:  true,
	}
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	Result       string
	Fetched      int
	Accepted     map[models.Stream]int
	Delivered    int
	Failed       int
	Skipped      int
	StreamErrors map[models.Stream]error
	Err          error
}

// Status is a point-in-time view for health reporting.
type Status struct {
	State               State
	LastSuccess         time.Time
	ConsecutiveFailures int
	LastError           error
	CriticalAlerted     bool
	AuthAlerted         []models.Stream
	LastCycle           *CycleReport
}

// Orchestrator runs poll cycles.
type Orchestrator struct {
	adapters  []source.Adapter
	store     WatermarkStore
	dedup     *dedup.Set
	deliverer Deliverer
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time

	state atomic.Int32

	mu                  sync.Mutex
	consecutiveFailures int
	criticalAlerted     bool
	authAlerted         map[models.Stream]bool
	lastSuccess         time.Time
	lastError           error
	lastCycle           *CycleReport
}

// New creates an Orchestrator. publisher may be nil.
func New(adapters []source.Adapter, store WatermarkStore, deliverer Deliverer, publisher Publisher, cfg Config) *Orchestrator {
	if cfg.EventPause < 0 {
		cfg.EventPause = 0
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	return &Orchestrator{
		adapters:    adapters,
		store:       store,
		dedup:       dedup.New(),
		deliverer:   deliverer,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logging.With().Str("component", "orchestrator").Logger(),
		now:         time.Now,
		authAlerted: make(map[models.Stream]bool),
	}
}

// Streams returns the polled streams in order.
func (o *Orchestrator) Streams() []models.Stream {
	out := make([]models.Stream, 0, len(o.adapters))
	for _, a := range o.adapters {
		out = append(out, a.Stream())
	}
	return out
}

// RunCycle runs one poll cycle. It returns false without doing anything if
// a cycle is already running.
func (o *Orchestrator) RunCycle(ctx context.Context) (report CycleReport, ran bool) {
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		o.logger.Warn().Msg("Cycle already running, skipping trigger")
		metrics.RecordCycle(ResultSkipped, 0)
		return CycleReport{Result: ResultSkipped}, false
	}
	defer o.state.Store(int32(Idle))

	report = CycleReport{
		StartedAt:    o.now(),
		Accepted:     make(map[models.Stream]int),
		StreamErrors: make(map[models.Stream]error),
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				report.Err = fmt.Errorf("cycle panic: %v", r)
				o.logger.Error().
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in poll cycle")
			}
		}()
		report.Err = o.runStreams(ctx, &report)
	}()

	report.Duration = o.now().Sub(report.StartedAt)
	o.finish(ctx, &report)
	return report, true
}

// runStreams processes every stream in order. The returned error is
// cycle-fatal.
func (o *Orchestrator) runStreams(ctx context.Context, report *CycleReport) error {
	o.dedup.Reset()

	firstDelivery := true
	for _, adapter := range o.adapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream := adapter.Stream()
		log := o.logger.With().Str("stream", string(stream)).Logger()

		events, err := adapter.Fetch(ctx)
		if err != nil {
			report.StreamErrors[stream] = err
			if models.IsAuth(err) {
				o.alertAuth(ctx, stream, err)
			} else {
				log.Warn().Err(err).Msg("Fetch failed, skipping stream this cycle")
			}
			continue
		}
		report.Fetched += len(events)

		current, err := o.store.Get(ctx, stream)
		if err != nil {
			return fmt.Errorf("load watermark for %s: %w", stream, err)
		}

		accepted := eligibility.Filter(events, current, o.dedup)
		report.Accepted[stream] = len(accepted)
		metrics.EventsAccepted.WithLabelValues(string(stream)).Add(float64(len(accepted)))
		if len(accepted) == 0 {
			log.Debug().Int("fetched", len(events)).Int64("watermark", current).Msg("No new events")
			continue
		}

		next := eligibility.MaxID(accepted)
		if err := o.store.Set(ctx, stream, next); err != nil {
			return fmt.Errorf("persist watermark for %s: %w", stream, err)
		}
		log.Info().
			Int("fetched", len(events)).
			Int("accepted", len(accepted)).
			Int64("watermark", next).
			Msg("Watermark advanced")

		for _, ev := range accepted {
			if !firstDelivery && o.cfg.EventPause > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(o.cfg.EventPause):
				}
			}
			firstDelivery = false

			outcome := o.deliverer.Deliver(ctx, ev)
			switch {
			case outcome.Delivered():
				report.Delivered++
			case outcome == delivery.Skipped:
				report.Skipped++
			default:
				report.Failed++
			}
			o.publish(ctx, ev, outcome)
		}
	}

	// A fetch cut short by cancellation is not a stream failure.
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(o.adapters) > 0 && len(report.StreamErrors) == len(o.adapters) {
		return fmt.Errorf("%w: %w", ErrAllStreamsFailed, errors.Join(streamErrors(o.adapters, report.StreamErrors)...))
	}
	return nil
}

func streamErrors(adapters []source.Adapter, errs map[models.Stream]error) []error {
	out := make([]error, 0, len(errs))
	for _, a := range adapters {
		if err, ok := errs[a.Stream()]; ok {
			out = append(out, err)
		}
	}
	return out
}

func (o *Orchestrator) publish(ctx context.Context, ev models.Event, outcome delivery.Outcome) {
	if o.publisher == nil {
		return
	}
	rec := models.DeliveryRecord{Event: ev, Outcome: outcome.String(), ProcessedAt: o.now()}
	if err := o.publisher.PublishDelivery(ctx, rec); err != nil {
		o.logger.Warn().Err(err).Str("event", ev.Key()).Msg("Failed to publish delivery record")
	}
}

// alertAuth sends the one-shot authentication alert for stream.
func (o *Orchestrator) alertAuth(ctx context.Context, stream models.Stream, err error) {
	o.mu.Lock()
	already := o.authAlerted[stream]
	o.authAlerted[stream] = true
	o.mu.Unlock()

	o.logger.Error().Err(err).Str("stream", string(stream)).Bool("alert_suppressed", already).
		Msg("Telemetry API rejected credentials")
	if already {
		return
	}

	metrics.CriticalAlerts.WithLabelValues("auth").Inc()
	if nerr := o.deliverer.Notify(ctx, formatter.AuthAlert(stream, err)); nerr != nil {
		o.logger.Error().Err(nerr).Str("stream", string(stream)).Msg("Failed to send authentication alert")
	}
}

// finish updates failure accounting and sends the summary or critical alert.
func (o *Orchestrator) finish(ctx context.Context, report *CycleReport) {
	var alert string

	o.mu.Lock()
	switch {
	case errors.Is(report.Err, context.Canceled) && ctx.Err() != nil:
		// Failure counter and sticky flags are left as they were.
		report.Result = ResultAborted
	case report.Err != nil:
		report.Result = ResultFailure
		o.consecutiveFailures++
		o.lastError = report.Err
		if o.consecutiveFailures >= o.cfg.FailureThreshold && !o.criticalAlerted {
			o.criticalAlerted = true
			alert = formatter.CriticalAlert(o.consecutiveFailures, report.Err)
		}
	case len(report.StreamErrors) > 0:
		report.Result = ResultPartial
	default:
		report.Result = ResultSuccess
		o.consecutiveFailures = 0
		o.criticalAlerted = false
		clear(o.authAlerted)
		o.lastSuccess = o.now()
		o.lastError = nil
	}
	failures := o.consecutiveFailures
	cycle := *report
	o.lastCycle = &cycle
	o.mu.Unlock()

	metrics.RecordCycle(report.Result, report.Duration)
	metrics.ConsecutiveFailures.Set(float64(failures))

	event := o.logger.Info()
	if report.Result == ResultAborted {
		event = o.logger.Warn().Err(report.Err)
	} else if report.Err != nil {
		event = o.logger.Error().Err(report.Err)
	}
	event.
		Str("result", report.Result).
		Int("fetched", report.Fetched).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("stream_errors", len(report.StreamErrors)).
		Int("consecutive_failures", failures).
		Dur("duration", report.Duration).
		Msg("Cycle complete")

	if report.Result == ResultAborted {
		return
	}
	if alert != "" {
		metrics.CriticalAlerts.WithLabelValues("consecutive_failures").Inc()
		if err := o.deliverer.Notify(ctx, alert); err != nil {
			o.logger.Error().Err(err).Msg("Failed to send critical alert")
		}
	}
	if o.cfg.SummaryOnErrors && report.Failed > 0 {
		summary := formatter.CycleSummary(report.Delivered+report.Failed, report.Failed, report.Duration)
		if err := o.deliverer.Notify(ctx, summary); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to send cycle summary")
		}
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Status returns a snapshot for health reporting.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		State:               o.State(),
		LastSuccess:         o.lastSuccess,
		ConsecutiveFailures: o.consecutiveFailures,
		LastError:           o.lastError,
		CriticalAlerted:     o.criticalAlerted,
	}
	for _, a := range o.adapters {
		if o.authAlerted[a.Stream()] {
			st.AuthAlerted = append(st.AuthAlerted, a.Stream())
		}
	}
	if o.lastCycle != nil {
		c := *o.lastCycle
		st.LastCycle = &c
	}
	return st
}
