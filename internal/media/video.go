// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
)

// VideoConfig configures dashcam video downloads.
type VideoConfig struct {
	TempDir    string        // default os.TempDir()
	MaxBytes   int64         // default 50 MB, chat upload limit
	MinBytes   int64         // default 10 KB
	Timeout    time.Duration // per attempt, default 180s
	Attempts   int           // default 2
	RetryDelay time.Duration // default 2s
	HTTPClient *http.Client
}

// VideoProvider downloads the event's dashcam videos, one file per camera.
type VideoProvider struct {
	cfg    VideoConfig
	client *http.Client
	logger zerolog.Logger
}

// NewVideoProvider creates a VideoProvider, applying defaults.
func NewVideoProvider(cfg VideoConfig) *VideoProvider {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 10 << 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &VideoProvider{
		cfg:    cfg,
		client: client,
		logger: logging.With().Str("component", "video").Logger(),
	}
}

// Acquire implements Provider. Every camera with a URL is downloaded, front
// facing first; a failed camera does not prevent the others.
func (p *VideoProvider) Acquire(ctx context.Context, ev models.Event) ([]*Media, error) {
	cams := cameras(ev.Payload)
	if !ev.Payload.MediaAvailable || len(cams) == 0 {
		metrics.MediaAcquisitions.WithLabelValues("unavailable").Inc()
		return nil, ErrUnavailable
	}

	var (
		acquired []*Media
		errs     []error
	)
	for _, cam := range cams {
		m, err := p.acquireOne(ctx, ev, cam)
		if err == nil {
			acquired = append(acquired, m)
			continue
		}
		if ctx.Err() != nil {
			_ = ReleaseAll(acquired)
			return nil, ctx.Err()
		}
		p.logger.Warn().
			Err(err).
			Str("stream", string(ev.Stream)).
			Int64("event_id", ev.ID).
			Str("camera", cam.label).
			Msg("Camera video unavailable")
		errs = append(errs, err)
	}
	if len(acquired) > 0 {
		return acquired, nil
	}
	return nil, worstError(errs)
}

type camera struct {
	url   string
	label string
}

func cameras(p models.Payload) []camera {
	var cams []camera
	if p.FrontFacingURL != "" {
		cams = append(cams, camera{p.FrontFacingURL, "Front Facing"})
	}
	if p.DriverFacingURL != "" {
		cams = append(cams, camera{p.DriverFacingURL, "Driver Facing"})
	}
	return cams
}

// worstError prefers a real acquisition failure over unavailability, and
// an oversized file over any other unavailability.
func worstError(errs []error) error {
	var tooLarge error
	for _, err := range errs {
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		if tooLarge == nil && errors.Is(err, ErrTooLarge) {
			tooLarge = err
		}
	}
	if tooLarge != nil {
		return tooLarge
	}
	return errs[0]
}

// acquireOne downloads one camera's video with retries.
func (p *VideoProvider) acquireOne(ctx context.Context, ev models.Event, cam camera) (*Media, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		m, err := p.download(ctx, ev, cam.url, cam.label)
		if err == nil {
			metrics.MediaAcquisitions.WithLabelValues("ok").Inc()
			metrics.MediaBytes.Add(float64(m.Size))
			return m, nil
		}
		lastErr = err

		if errors.Is(err, ErrUnavailable) {
			result := "unavailable"
			if errors.Is(err, ErrTooLarge) {
				result = "too_large"
			}
			metrics.MediaAcquisitions.WithLabelValues(result).Inc()
			return nil, err
		}

		p.logger.Warn().
			Err(err).
			Str("stream", string(ev.Stream)).
			Int64("event_id", ev.ID).
			Str("camera", cam.label).
			Int("attempt", attempt).
			Msg("Video download failed")

		if attempt < p.cfg.Attempts {
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	metrics.MediaAcquisitions.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("download %s video for %s: %w", cam.label, ev.Key(), lastErr)
}

// download streams one attempt into a fresh temp file. The file is removed
// on every failure path.
func (p *VideoProvider) download(ctx context.Context, ev models.Event, videoURL, label string) (_ *Media, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request video: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusGone:
		// Signed media links expire; retrying will not help.
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("video HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > p.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	path := filepath.Join(p.cfg.TempDir, fmt.Sprintf("%s_%s.mp4", ev.Stream, uuid.NewString()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(f, io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read video after %d bytes: %w", n, err)
	}
	if n > p.cfg.MaxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, p.cfg.MaxBytes)
		return nil, err
	}
	if n < p.cfg.MinBytes {
		err = fmt.Errorf("%w: %d bytes", ErrTooSmall, n)
		return nil, err
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	p.logger.Debug().Str("path", path).Int64("bytes", n).Str("label", label).Msg("Video downloaded")
	return NewMedia(KindVideo, path, n, label, nil), nil
}
