// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/safetybot/internal/models"
)

func videoEvent(url string) models.Event {
	return models.Event{
		ID:       42,
		Stream:   models.StreamCrash,
		Severity: models.SeverityHigh,
		Payload: models.Payload{
			VehicleNumber:  "T-100",
			MediaAvailable: true,
			FrontFacingURL: url,
		},
	}
}

func newTestProvider(t *testing.T, dir string) *VideoProvider {
	t.Helper()
	return NewVideoProvider(VideoConfig{
		TempDir:    dir,
		MaxBytes:   1 << 20,
		MinBytes:   1 << 10,
		Timeout:    5 * time.Second,
		Attempts:   2,
		RetryDelay: time.Millisecond,
	})
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return entries
}

func TestVideoProviderSuccess(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte{0xAB}, 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := newTestProvider(t, dir)

	ms, err := p.Acquire(context.Background(), videoEvent(srv.URL+"/front.mp4"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("expected one video, got %d", len(ms))
	}
	m := ms[0]
	if m.Kind != KindVideo {
		t.Errorf("expected video kind, got %s", m.Kind)
	}
	if m.Size != int64(len(body)) {
		t.Errorf("expected size %d, got %d", len(body), m.Size)
	}
	if m.Label != "Front Facing" {
		t.Errorf("expected Front Facing label, got %q", m.Label)
	}
	base := filepath.Base(m.Path)
	if !strings.HasPrefix(base, "crash_") || !strings.HasSuffix(base, ".mp4") {
		t.Errorf("unexpected temp file name %q", base)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
	if n := len(dirEntries(t, dir)); n != 0 {
		t.Errorf("expected temp dir empty after release, found %d files", n)
	}
}

func TestVideoProviderFallsBackToDriverFacing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{1}, 2<<10))
	}))
	defer srv.Close()

	ev := videoEvent("")
	ev.Payload.DriverFacingURL = srv.URL + "/driver.mp4"

	ms, err := newTestProvider(t, t.TempDir()).Acquire(context.Background(), ev)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer ReleaseAll(ms)
	if len(ms) != 1 || ms[0].Label != "Driver Facing" {
		t.Errorf("expected a single Driver Facing video, got %+v", ms)
	}
}

func TestVideoProviderEachCamera(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		front, driver   int
		wantLabels      []string
		wantUnavailable bool
	}{
		{"both cameras", http.StatusOK, http.StatusOK, []string{"Front Facing", "Driver Facing"}, false},
		{"front server error", http.StatusInternalServerError, http.StatusOK, []string{"Driver Facing"}, false},
		{"driver expired", http.StatusOK, http.StatusForbidden, []string{"Front Facing"}, false},
		{"both expired", http.StatusForbidden, http.StatusNotFound, nil, true},
		{"front error driver expired", http.StatusInternalServerError, http.StatusForbidden, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				status := tt.front
				if r.URL.Path == "/driver.mp4" {
					status = tt.driver
				}
				if status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write(bytes.Repeat([]byte{5}, 20<<10))
			}))
			defer srv.Close()

			ev := videoEvent(srv.URL + "/front.mp4")
			ev.Payload.DriverFacingURL = srv.URL + "/driver.mp4"
			dir := t.TempDir()

			ms, err := newTestProvider(t, dir).Acquire(context.Background(), ev)
			if tt.wantLabels == nil {
				if err == nil {
					t.Fatalf("expected error, got %d files", len(ms))
				}
				if errors.Is(err, ErrUnavailable) != tt.wantUnavailable {
					t.Errorf("unexpected error class: %v", err)
				}
				if n := len(dirEntries(t, dir)); n != 0 {
					t.Errorf("expected no temp files left, found %d", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			var labels []string
			for _, m := range ms {
				labels = append(labels, m.Label)
			}
			if strings.Join(labels, ",") != strings.Join(tt.wantLabels, ",") {
				t.Errorf("expected %v, got %v", tt.wantLabels, labels)
			}
			if err := ReleaseAll(ms); err != nil {
				t.Fatalf("ReleaseAll: %v", err)
			}
			if n := len(dirEntries(t, dir)); n != 0 {
				t.Errorf("expected temp dir empty after release, found %d", n)
			}
		})
	}
}

func TestVideoProviderUnavailable(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, t.TempDir())

	ev := videoEvent("http://unused.invalid/video.mp4")
	ev.Payload.MediaAvailable = false
	if _, err := p.Acquire(context.Background(), ev); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without media, got %v", err)
	}

	if _, err := p.Acquire(context.Background(), videoEvent("")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without URL, got %v", err)
	}
}

func TestVideoProviderTooLarge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		contentLength bool
	}{
		{"declared length", true},
		{"chunked body", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			body := bytes.Repeat([]byte{2}, 2<<20)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(body)))
				}
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			dir := t.TempDir()
			_, err := newTestProvider(t, dir).Acquire(context.Background(), videoEvent(srv.URL))
			if !errors.Is(err, ErrTooLarge) {
				t.Fatalf("expected ErrTooLarge, got %v", err)
			}
			if !errors.Is(err, ErrUnavailable) {
				t.Error("ErrTooLarge should also match ErrUnavailable")
			}
			if calls.Load() != 1 {
				t.Errorf("oversized media should not be retried, got %d calls", calls.Load())
			}
			if n := len(dirEntries(t, dir)); n != 0 {
				t.Errorf("expected no temp files left, found %d", n)
			}
		})
	}
}

func TestVideoProviderTooSmall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newTestProvider(t, dir).Acquire(context.Background(), videoEvent(srv.URL))
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
	if n := len(dirEntries(t, dir)); n != 0 {
		t.Errorf("expected no temp files left, found %d", n)
	}
}

func TestVideoProviderExpiredLink(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestProvider(t, t.TempDir()).Acquire(context.Background(), videoEvent(srv.URL))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestVideoProviderRetriesServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(bytes.Repeat([]byte{3}, 4<<10))
	}))
	defer srv.Close()

	ms, err := newTestProvider(t, t.TempDir()).Acquire(context.Background(), videoEvent(srv.URL))
	if err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	defer ReleaseAll(ms)
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

// A connection dropped mid-body must not leave a partial file behind.
func TestVideoProviderPartialDownloadCleanup(t *testing.T) {
	t.Parallel()

	const declared = 6 << 10
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(declared))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{4}, 5<<10))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := newTestProvider(t, dir)
	p.cfg.MinBytes = 1

	_, err := p.Acquire(context.Background(), videoEvent(srv.URL))
	if err == nil {
		t.Fatal("expected error for truncated download")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("truncated download is an acquisition failure, not unavailability: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if n := len(dirEntries(t, dir)); n != 0 {
		t.Errorf("expected partial files removed, found %d", n)
	}
}

func TestMediaReleaseNil(t *testing.T) {
	t.Parallel()

	var m *Media
	if err := m.Release(); err != nil {
		t.Errorf("nil Release should be a no-op, got %v", err)
	}
}

func TestMediaCustomRelease(t *testing.T) {
	t.Parallel()

	var released int
	m := NewMedia(KindVideo, "/nowhere", 1, "test", func() error {
		released++
		return nil
	})
	_ = m.Release()
	_ = m.Release()
	if released != 1 {
		t.Errorf("expected release once, got %d", released)
	}
}

type fakeCapturer struct {
	logins int
	img    []byte
	err    error
}

func (f *fakeCapturer) Login(context.Context) error {
	f.logins++
	return nil
}

func (f *fakeCapturer) Capture(context.Context, int64) ([]byte, error) {
	return f.img, f.err
}

func TestScreenshotProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := &fakeCapturer{img: []byte("\x89PNG fake image")}
	p := NewScreenshotProvider(c, dir, 0)

	ev := models.Event{ID: 7, Stream: models.StreamSpeeding, Severity: models.SeverityCritical}
	for i := 0; i < 2; i++ {
		ms, err := p.Acquire(context.Background(), ev)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if len(ms) != 1 || ms[0].Kind != KindPhoto {
			t.Fatalf("expected a single photo, got %+v", ms)
		}
		if !strings.HasSuffix(ms[0].Path, ".png") {
			t.Errorf("expected png path, got %s", ms[0].Path)
		}
		if err := ReleaseAll(ms); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if c.logins != 1 {
		t.Errorf("expected a single login, got %d", c.logins)
	}
	if n := len(dirEntries(t, dir)); n != 0 {
		t.Errorf("expected temp dir empty, found %d", n)
	}

	c.img = nil
	if _, err := p.Acquire(context.Background(), ev); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty capture, got %v", err)
	}

	if _, err := NewScreenshotProvider(nil, dir, 0).Acquire(context.Background(), ev); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without capturer, got %v", err)
	}
}

func TestCommandCapturer(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name    string
		script  string
		want    string
		wantErr string
	}{
		{"event id appended", `printf 'png:%s' "$*"`, "png:--png 7", ""},
		{"non-zero exit", `echo boom >&2; exit 3`, "", "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			script := filepath.Join(t.TempDir(), "capture.sh")
			if err := os.WriteFile(script, []byte("#!/bin/sh\n"+tt.script+"\n"), 0o700); err != nil {
				t.Fatal(err)
			}
			c, err := NewCommandCapturer(script+" --png", 5*time.Second)
			if err != nil {
				t.Fatalf("NewCommandCapturer: %v", err)
			}
			if err := c.Login(context.Background()); err != nil {
				t.Fatalf("Login: %v", err)
			}
			img, err := c.Capture(context.Background(), 7)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if string(img) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, img)
			}
		})
	}

	if _, err := NewCommandCapturer("  ", 0); err == nil {
		t.Error("expected error for empty command")
	}
	missing, err := NewCommandCapturer("safetybot-no-such-capture-tool", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := missing.Login(context.Background()); err == nil {
		t.Error("expected Login to fail for a missing program")
	}
}
