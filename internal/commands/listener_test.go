// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/safetybot/internal/delivery"
)

const testChat = "-1001234"

// scriptedSource replays batches of updates, then blocks until ctx ends.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]delivery.Update
	errs    []error
	offsets []int64
	drained chan struct{}
}

func newScriptedSource(batches ...[]delivery.Update) *scriptedSource {
	return &scriptedSource{batches: batches, drained: make(chan struct{})}
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]delivery.Update, error) {
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	select {
	case <-s.drained:
	default:
		close(s.drained)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedSource) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

type recordingReplier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingReplier) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingReplier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func msg(updateID, chatID int64, text string) delivery.Update {
	m := &delivery.IncomingMessage{MessageID: updateID, Text: text}
	m.Chat.ID = chatID
	return delivery.Update{UpdateID: updateID, Message: m}
}

// runUntilDrained runs the listener until the source has no more batches.
func runUntilDrained(t *testing.T, l *Listener, src *scriptedSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-src.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not consume all updates")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestListenerDispatch(t *testing.T) {
	t.Parallel()

	src := newScriptedSource(
		[]delivery.Update{
			msg(10, -1001234, "/status"),
			msg(11, 999, "/export"), // other chat
			{UpdateID: 12},          // no message
		},
		[]delivery.Update{
			msg(13, -1001234, "/export@SafetyBot yesterday"),
			msg(14, -1001234, "hello"),
		},
	)
	replies := &recordingReplier{}
	l := NewListener(src, replies, Config{ChatID: testChat, ErrorBackoff: time.Millisecond})

	var mu sync.Mutex
	var calls []string
	l.Handle("status", "health report", func(context.Context, string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "status")
		return nil
	})
	l.Handle("/export", "send today's export", func(_ context.Context, args string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "export:"+args)
		return nil
	})

	runUntilDrained(t, l, src)

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(calls, ",") != "status,export:yesterday" {
		t.Errorf("unexpected handler calls: %v", calls)
	}
	if got := l.Offset(); got != 15 {
		t.Errorf("expected offset 15, got %d", got)
	}
	offsets := src.seenOffsets()
	if offsets[0] != 0 || offsets[1] != 13 || offsets[2] != 15 {
		t.Errorf("unexpected polled offsets: %v", offsets)
	}
	if len(replies.all()) != 0 {
		t.Errorf("expected no replies, got %v", replies.all())
	}
}

func TestListenerRepliesOnErrors(t *testing.T) {
	t.Parallel()

	src := newScriptedSource([]delivery.Update{
		msg(1, -1001234, "/bogus"),
		msg(2, -1001234, "/export"),
		msg(3, -1001234, "/panic"),
		msg(4, -1001234, "/help"),
	})
	replies := &recordingReplier{}
	l := NewListener(src, replies, Config{ChatID: testChat})
	l.Handle("export", "send today's export", func(context.Context, string) error {
		return errors.New("archive offline")
	})
	l.Handle("panic", "boom", func(context.Context, string) error {
		panic("boom")
	})

	runUntilDrained(t, l, src)

	got := replies.all()
	if len(got) != 4 {
		t.Fatalf("expected 4 replies, got %d: %v", len(got), got)
	}
	if !strings.Contains(got[0], "Unknown command /bogus") {
		t.Errorf("unexpected unknown-command reply: %s", got[0])
	}
	if !strings.Contains(got[1], "/export failed: archive offline") {
		t.Errorf("unexpected failure reply: %s", got[1])
	}
	if !strings.Contains(got[2], "/panic failed: panic: boom") {
		t.Errorf("unexpected panic reply: %s", got[2])
	}
	for _, want := range []string{"/export - send today's export", "/help - list commands", "/panic - boom"} {
		if !strings.Contains(got[3], want) {
			t.Errorf("help missing %q: %s", want, got[3])
		}
	}
}

func TestListenerSkipBacklog(t *testing.T) {
	t.Parallel()

	src := newScriptedSource(
		[]delivery.Update{msg(41, -1001234, "/status")}, // backlog
		[]delivery.Update{msg(42, -1001234, "/status")},
	)
	l := NewListener(src, &recordingReplier{}, Config{ChatID: testChat, SkipBacklog: true})

	var mu sync.Mutex
	count := 0
	l.Handle("status", "health report", func(context.Context, string) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	runUntilDrained(t, l, src)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected only the post-start command to run, ran %d", count)
	}
	if offsets := src.seenOffsets(); offsets[0] != -1 || offsets[1] != 42 {
		t.Errorf("unexpected offsets: %v", offsets)
	}
}

func TestListenerBacksOffAndStopsOnAuth(t *testing.T) {
	t.Parallel()

	src := newScriptedSource()
	src.errs = []error{
		&delivery.SendError{Code: delivery.ErrorCodeServerError, StatusCode: 502, Transient: true},
		&delivery.SendError{Code: delivery.ErrorCodeAuthFailed, StatusCode: 401, Description: "Unauthorized"},
	}
	l := NewListener(src, &recordingReplier{}, Config{ChatID: testChat, ErrorBackoff: time.Millisecond})

	err := l.Run(context.Background())
	if delivery.CodeOf(err) != delivery.ErrorCodeAuthFailed {
		t.Fatalf("expected auth error, got %v", err)
	}
	if n := len(src.seenOffsets()); n != 2 {
		t.Errorf("expected 2 polls, got %d", n)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/status", "status", "", true},
		{"  /STATUS  ", "status", "", true},
		{"/export@SafetyBot", "export", "", true},
		{"/export 2026-03-01", "export", "2026-03-01", true},
		{"/export@SafetyBot  2026-03-01 ", "export", "2026-03-01", true},
		{"status", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			name, args, ok := ParseCommand(tt.text)
			if name != tt.wantName || args != tt.wantArgs || ok != tt.wantOK {
				t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.text, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
			}
		})
	}
}
