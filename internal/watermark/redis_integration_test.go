// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

//go:build integration

package watermark

import (
	"context"
	"testing"

	"github.com/tomtom215/safetybot/internal/models"
	"github.com/tomtom215/safetybot/internal/testinfra"
)

func TestRedisBackendIntegration(t *testing.T) {
	addr := testinfra.StartRedis(t)
	ctx := context.Background()

	backend, err := NewRedisBackend(ctx, RedisConfig{Addr: addr, KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	s := NewStore(backend)
	defer s.Close()

	got, err := s.Get(ctx, models.StreamCrash)
	if err != nil || got != 0 {
		t.Fatalf("expected 0 for missing key, got %d (%v)", got, err)
	}

	for _, id := range []int64{10, 40, 25} {
		if err := s.Set(ctx, models.StreamCrash, id); err != nil {
			t.Fatalf("Set(%d): %v", id, err)
		}
	}
	got, err = s.Get(ctx, models.StreamCrash)
	if err != nil {
		t.Fatal(err)
	}
	if got != 40 {
		t.Errorf("expected 40, got %d", got)
	}

	// A second connection sees the same value.
	other, err := NewRedisBackend(ctx, RedisConfig{Addr: addr, KeyPrefix: "test:"})
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	v, ok, err := other.Load(ctx, Key(models.StreamCrash))
	if err != nil || !ok || v != 40 {
		t.Errorf("second client Load = %d, %v, %v", v, ok, err)
	}
}
