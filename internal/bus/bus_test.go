// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/safetybot/internal/models"
)

func testRecord(id int64) models.DeliveryRecord {
	return models.DeliveryRecord{
		Event: models.Event{
			ID:        id,
			Stream:    models.StreamCrash,
			Severity:  models.SeverityCritical,
			Timestamp: time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC),
			Payload:   models.Payload{VehicleNumber: "TRK-12", DriverName: "Sam"},
		},
		Outcome:     "sent",
		ProcessedAt: time.Date(2026, 3, 1, 14, 6, 0, 0, time.UTC),
	}
}

// collector gathers consumed records.
type collector struct {
	mu      sync.Mutex
	records []models.DeliveryRecord
	got     chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 64)}
}

func (c *collector) handle(_ context.Context, rec models.DeliveryRecord) error {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []models.DeliveryRecord {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-deadline:
			t.Fatalf("timed out waiting for %d records, got %d", n, i)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.DeliveryRecord(nil), c.records...)
}

// startConsumer runs Consume and waits until the subscription exists.
func startConsumer(t *testing.T, b *Bus, handler func(context.Context, models.DeliveryRecord) error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Consume(ctx, handler) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("consumer did not stop")
		}
	})
	// Subscribe is asynchronous from the caller's view.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestGoChannelRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if b.Transport() != "gochannel" {
		t.Errorf("expected gochannel transport, got %s", b.Transport())
	}

	c := newCollector()
	startConsumer(t, b, c.handle)

	for _, id := range []int64{501, 502} {
		if err := b.PublishDelivery(context.Background(), testRecord(id)); err != nil {
			t.Fatalf("PublishDelivery: %v", err)
		}
	}

	got := c.wait(t, 2)
	ids := map[int64]bool{}
	for _, r := range got {
		ids[r.Event.ID] = true
		if r.Event.Payload.VehicleNumber != "TRK-12" || r.Outcome != "sent" {
			t.Errorf("record not preserved: %+v", r)
		}
	}
	if !ids[501] || !ids[502] {
		t.Errorf("expected ids 501 and 502, got %v", ids)
	}
}

func TestConsumeRetriesThenDrops(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.HandlerAttempts = 3
	cfg.HandlerRetryDelay = 10 * time.Millisecond
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	var calls atomic.Int32
	startConsumer(t, b, func(context.Context, models.DeliveryRecord) error {
		calls.Add(1)
		return errors.New("archive down")
	})

	if err := b.PublishDelivery(context.Background(), testRecord(1)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// A dropped message is acked and must not come back.
	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly 3 handler attempts, got %d", got)
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()

	b, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if err := b.PublishDelivery(context.Background(), testRecord(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := b.Consume(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Consume, got %v", err)
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"event":{"id":7,"stream":"speeding","severity":"low"},"outcome":"sent"}`, false},
		{"not json", `{{`, true},
		{"missing id", `{"event":{"stream":"speeding"}}`, true},
		{"missing stream", `{"event":{"id":7}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRecord([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		ServerName: "safetybot-test",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATSRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("embedded NATS server")
	}
	ns := runNATSServer(t)

	cfg := DefaultConfig()
	cfg.NATSURL = ns.ClientURL()
	cfg.CloseTimeout = 2 * time.Second
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if b.Transport() != "nats" {
		t.Errorf("expected nats transport, got %s", b.Transport())
	}

	c := newCollector()
	startConsumer(t, b, c.handle)

	if err := b.PublishDelivery(context.Background(), testRecord(77)); err != nil {
		t.Fatalf("PublishDelivery: %v", err)
	}

	got := c.wait(t, 1)
	if got[0].Event.Key() != "crash:77" {
		t.Errorf("expected crash:77, got %s", got[0].Event.Key())
	}
	if !got[0].ProcessedAt.Equal(testRecord(77).ProcessedAt) {
		t.Errorf("processed_at not preserved: %v", got[0].ProcessedAt)
	}
}
