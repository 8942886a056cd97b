// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package watermark

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/tomtom215/safetybot/internal/models"
)

// failingBackend wraps a MemoryBackend and fails Save on demand.
type failingBackend struct {
	*MemoryBackend
	saveErr error
}

func (f *failingBackend) Save(ctx context.Context, key string, value uint64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBackend.Save(ctx, key, value)
}

func TestStoreGetDefaultsToZero(t *testing.T) {
	t.Parallel()

	s := NewStore(NewMemoryBackend())
	got, err := s.Get(context.Background(), models.StreamSpeeding)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 for unset stream, got %d", got)
	}
}

func TestStoreMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(NewMemoryBackend())
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data

	var highest int64
	for i := 0; i < 200; i++ {
		id := rng.Int63n(1000)
		if err := s.Set(ctx, models.StreamCrash, id); err != nil {
			t.Fatalf("Set(%d): %v", id, err)
		}
		if id > highest {
			highest = id
		}
		got, err := s.Get(ctx, models.StreamCrash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != highest {
			t.Fatalf("after Set(%d) got %d, want max %d", id, got, highest)
		}
	}
}

func TestStorePerStreamIndependence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(NewMemoryBackend())

	if err := s.Set(ctx, models.StreamSpeeding, 500); err != nil {
		t.Fatal(err)
	}
	crash, err := s.Get(ctx, models.StreamCrash)
	if err != nil {
		t.Fatal(err)
	}
	if crash != 0 {
		t.Errorf("crash watermark moved with speeding: %d", crash)
	}
}

func TestStoreSetFailureLeavesWatermark(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(backend)

	if err := s.Set(ctx, models.StreamDistraction, 10); err != nil {
		t.Fatal(err)
	}

	ioErr := errors.New("disk full")
	backend.saveErr = ioErr
	err := s.Set(ctx, models.StreamDistraction, 20)
	if !errors.Is(err, ioErr) {
		t.Fatalf("expected wrapped io error, got %v", err)
	}

	got, _ := s.Get(ctx, models.StreamDistraction)
	if got != 10 {
		t.Errorf("watermark advanced despite failed write: %d", got)
	}
}

func TestStoreRejectsNegative(t *testing.T) {
	t.Parallel()

	s := NewStore(NewMemoryBackend())
	if err := s.Set(context.Background(), models.StreamCrash, -1); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestStoreSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(NewMemoryBackend())
	_ = s.Set(ctx, models.StreamSpeeding, 7)
	_ = s.Set(ctx, models.StreamHardBrake, 9)

	snap, err := s.Snapshot(ctx, models.AllStreams())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != len(models.AllStreams()) {
		t.Errorf("expected %d entries, got %d", len(models.AllStreams()), len(snap))
	}
	if snap[models.StreamSpeeding] != 7 || snap[models.StreamHardBrake] != 9 || snap[models.StreamCrash] != 0 {
		t.Errorf("unexpected snapshot: %v", snap)
	}
}

func TestBadgerBackendSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watermarks")

	b, err := OpenBadger(path)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	s := NewStore(b)
	if err := s.Set(ctx, models.StreamSeatBeltViolation, 12345); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := OpenBadger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()

	s2 := NewStore(b2)
	got, err := s2.Get(ctx, models.StreamSeatBeltViolation)
	if err != nil {
		t.Fatal(err)
	}
	if got != 12345 {
		t.Errorf("expected 12345 after reopen, got %d", got)
	}
	if err := s2.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestBadgerBackendClosed(t *testing.T) {
	t.Parallel()

	b, err := OpenBadger(filepath.Join(t.TempDir(), "wm"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, _, err := b.Load(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := b.Save(context.Background(), "k", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenBadger(""); err == nil {
		t.Error("expected error for empty path")
	}
}
