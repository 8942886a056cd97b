// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tomtom215/safetybot/internal/models"
)

// Capturer renders an event page and returns PNG bytes. Implementations
// drive an authenticated browser session against the provider's web
// console; CommandCapturer hands that job to an external program.
type Capturer interface {
	Login(ctx context.Context) error
	Capture(ctx context.Context, eventID int64) ([]byte, error)
}

// ScreenshotProvider adapts a Capturer to Provider, used for streams
// without video such as speeding.
type ScreenshotProvider struct {
	capturer Capturer
	tempDir  string
	maxBytes int64
	loggedIn bool
}

// NewScreenshotProvider wraps capturer. maxBytes <= 0 means 10 MB.
func NewScreenshotProvider(capturer Capturer, tempDir string, maxBytes int64) *ScreenshotProvider {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &ScreenshotProvider{capturer: capturer, tempDir: tempDir, maxBytes: maxBytes}
}

// Acquire implements Provider. Not safe for concurrent use; the
// orchestrator delivers events one at a time.
func (p *ScreenshotProvider) Acquire(ctx context.Context, ev models.Event) ([]*Media, error) {
	if p.capturer == nil {
		return nil, ErrUnavailable
	}
	if !p.loggedIn {
		if err := p.capturer.Login(ctx); err != nil {
			return nil, fmt.Errorf("screenshot login: %w", err)
		}
		p.loggedIn = true
	}

	img, err := p.capturer.Capture(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", ev.Key(), err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot", ErrUnavailable)
	}
	if int64(len(img)) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(img))
	}

	path := filepath.Join(p.tempDir, fmt.Sprintf("%s_%s.png", ev.Stream, uuid.NewString()))
	if err := os.WriteFile(path, img, 0o600); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write screenshot: %w", err)
	}
	return []*Media{NewMedia(KindPhoto, path, int64(len(img)), "Screenshot", nil)}, nil
}
