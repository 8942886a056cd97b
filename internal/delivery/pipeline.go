// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/formatter"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/media"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
)

// Outcome is the result of delivering one event.
type Outcome int

const (
	// Sent means the message went out, with media when the stream has any.
	Sent Outcome = iota
	// SentWithoutMedia means the message went out as text although the
	// stream is media-capable.
	SentWithoutMedia
	// Failed means nothing was delivered.
	Failed
	// Skipped means the event could not be formatted and was not sent.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case SentWithoutMedia:
		return "sent_without_media"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Delivered reports whether a message reached the channel.
func (o Outcome) Delivered() bool {
	return o == Sent || o == SentWithoutMedia
}

// PipelineConfig configures retry behaviour.
type PipelineConfig struct {
	// MaxRetries is the maximum number of retry attempts for transient errors.
	MaxRetries int

	// BaseDelay is the initial delay between retries.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// DefaultPipelineConfig returns the default retry policy.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Pipeline delivers events to a Channel.
type Pipeline struct {
	channel Channel
	media   map[models.Stream]media.Provider
	cfg     PipelineConfig
	logger  zerolog.Logger
}

// NewPipeline creates a Pipeline. providers maps media-capable streams to
// their media source; streams without an entry are sent as text.
func NewPipeline(channel Channel, providers map[models.Stream]media.Provider, cfg PipelineConfig) *Pipeline {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if providers == nil {
		providers = map[models.Stream]media.Provider{}
	}
	return &Pipeline{
		channel: channel,
		media:   providers,
		cfg:     cfg,
		logger:  logging.With().Str("component", "delivery").Logger(),
	}
}

// Channel returns the underlying channel.
func (p *Pipeline) Channel() Channel {
	return p.channel
}

// Deliver sends one event. Every acquired file is uploaded and released
// before Deliver returns.
func (p *Pipeline) Deliver(ctx context.Context, ev models.Event) Outcome {
	outcome := p.deliver(ctx, ev)
	metrics.RecordDelivery(string(ev.Stream), outcome.String())
	return outcome
}

func (p *Pipeline) deliver(ctx context.Context, ev models.Event) Outcome {
	log := p.logger.With().Str("stream", string(ev.Stream)).Int64("event_id", ev.ID).Logger()

	msg, err := formatter.Format(ev)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping event that could not be formatted")
		return Skipped
	}

	provider, mediaCapable := p.media[ev.Stream]
	if !mediaCapable {
		if err := p.send(ctx, func(ctx context.Context) error { return p.channel.SendText(ctx, msg) }); err != nil {
			log.Error().Err(err).Msg("Failed to deliver event")
			return Failed
		}
		return Sent
	}

	files, err := provider.Acquire(ctx, ev)
	defer func() {
		if rerr := media.ReleaseAll(files); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to remove temporary media")
		}
	}()

	if err != nil {
		if ctx.Err() != nil {
			return Failed
		}
		note := formatter.NoteMediaFailed
		switch {
		case errors.Is(err, media.ErrTooLarge):
			note = formatter.NoteMediaTooLarge
		case errors.Is(err, media.ErrUnavailable):
			note = formatter.NoteNoMedia
		default:
			log.Warn().Err(err).Msg("Media acquisition failed, sending text only")
		}
		return p.sendTextOnly(ctx, log, formatter.WithNote(msg, note))
	}

	// The message rides on the first accepted upload; later files carry
	// only their label.
	var (
		delivered bool
		rejected  error
	)
	for _, m := range files {
		text := msg
		if delivered {
			text = ""
		}
		err := p.send(ctx, func(ctx context.Context) error { return p.upload(ctx, m, text) })
		if err == nil {
			delivered = true
			continue
		}
		if delivered {
			log.Warn().Err(err).Str("label", m.Label).Msg("Additional media upload failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if IsTransient(err) || CodeOf(err) == ErrorCodeAuthFailed || ctx.Err() != nil {
			log.Error().Err(err).Msg("Failed to deliver event")
			return Failed
		}
		log.Warn().Err(err).Str("label", m.Label).Str("error_code", CodeOf(err)).Msg("Media upload rejected")
		rejected = err
	}
	if delivered {
		return Sent
	}

	// Every upload was permanently rejected: one text-only attempt.
	note := formatter.NoteUploadFailed
	if CodeOf(rejected) == ErrorCodeContentTooLarge {
		note = formatter.NoteMediaTooLarge
	}
	log.Warn().Err(rejected).Msg("Media upload rejected, falling back to text")
	if ferr := p.channel.SendText(ctx, formatter.WithNote(msg, note)); ferr != nil {
		log.Error().Err(ferr).Msg("Text fallback failed")
		return Failed
	}
	return SentWithoutMedia
}

// upload sends one file with the channel method matching its kind.
func (p *Pipeline) upload(ctx context.Context, m *media.Media, msg string) error {
	if m.Kind == media.KindPhoto {
		return p.channel.SendPhoto(ctx, formatter.PhotoCaption(msg, m.Label), m.Path)
	}
	return p.channel.SendVideo(ctx, formatter.VideoCaption(msg, m.Label), m.Path)
}

func (p *Pipeline) sendTextOnly(ctx context.Context, log zerolog.Logger, text string) Outcome {
	if err := p.send(ctx, func(ctx context.Context) error { return p.channel.SendText(ctx, text) }); err != nil {
		log.Error().Err(err).Msg("Failed to deliver event")
		return Failed
	}
	return SentWithoutMedia
}

// Notify sends an operational text (alert, summary, report) with the same
// retry policy as events.
func (p *Pipeline) Notify(ctx context.Context, text string) error {
	return p.send(ctx, func(ctx context.Context) error { return p.channel.SendText(ctx, text) })
}

// send runs fn, retrying transient failures with exponential backoff.
func (p *Pipeline) send(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.calculateBackoff(attempt, lastErr)
			p.logger.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("error_code", CodeOf(lastErr)).
				Msg("retrying send after delay")

			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
	}
	return lastErr
}

// calculateBackoff calculates the delay before the next retry attempt.
func (p *Pipeline) calculateBackoff(attempt int, lastErr error) time.Duration {
	var se *SendError
	if errors.As(lastErr, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	delay := p.cfg.BaseDelay * (1 << uint(attempt-1))
	if delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	return delay
}
