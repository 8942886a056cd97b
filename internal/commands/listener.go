// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package commands answers chat commands such as /status and /export.
//
// The Listener long-polls the Bot API for updates and only acts on messages
// from the configured chat. It runs beside the poll cycle, so every handler
// must be safe to call concurrently with a cycle.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/delivery"
	"github.com/tomtom215/safetybot/internal/logging"
)

// UpdateSource returns updates after offset. *delivery.TelegramChannel
// implements it.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]delivery.Update, error)
}

// Replier sends a text reply to the chat.
type Replier interface {
	SendText(ctx context.Context, text string) error
}

// Handler runs one command. args is the text after the command word.
type Handler func(ctx context.Context, args string) error

// Config tunes the listener.
type Config struct {
	// ChatID is the only chat whose commands are honored.
	ChatID string
	// Wait is the long-poll timeout. Default 30s.
	Wait time.Duration
	// ErrorBackoff is the pause after a failed poll. Default 5s; doubled up
	// to 1m while failures continue.
	ErrorBackoff time.Duration
	// SkipBacklog drops commands sent while the bot was down.
	SkipBacklog bool
	// HandlerTimeout bounds a single command. Default 5m.
	HandlerTimeout time.Duration
}

// Listener dispatches chat commands to handlers.
type Listener struct {
	source  UpdateSource
	replier Replier
	cfg     Config
	logger  zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]command
	offset   int64
}

type command struct {
	help    string
	handler Handler
}

// NewListener creates a Listener with a built-in /help command.
func NewListener(source UpdateSource, replier Replier, cfg Config) *Listener {
	if cfg.Wait <= 0 {
		cfg.Wait = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 5 * time.Minute
	}
	l := &Listener{
		source:   source,
		replier:  replier,
		cfg:      cfg,
		logger:   logging.With().Str("component", "commands").Logger(),
		handlers: make(map[string]command),
	}
	l.Handle("help", "list commands", func(ctx context.Context, _ string) error {
		return l.replier.SendText(ctx, l.helpText())
	})
	return l
}

// Handle registers h for /name. Names are case-insensitive.
func (l *Listener) Handle(name, help string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[strings.ToLower(strings.TrimPrefix(name, "/"))] = command{help: help, handler: h}
}

// Offset returns the next update id the listener will request.
func (l *Listener) Offset() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.offset
}

// Run polls until ctx is canceled. It returns ctx.Err() on cancellation and
// a non-nil error only when the bot credentials are rejected.
func (l *Listener) Run(ctx context.Context) error {
	if l.cfg.SkipBacklog {
		l.skipBacklog(ctx)
	}

	backoff := l.cfg.ErrorBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := l.source.GetUpdates(ctx, l.Offset(), l.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if delivery.CodeOf(err) == delivery.ErrorCodeAuthFailed {
				return fmt.Errorf("command listener: %w", err)
			}
			l.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Failed to poll for commands")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, time.Minute)
			continue
		}
		backoff = l.cfg.ErrorBackoff

		for _, u := range updates {
			l.advance(u.UpdateID)
			l.dispatch(ctx, u)
		}
	}
}

// skipBacklog asks for the newest update only and moves past it.
func (l *Listener) skipBacklog(ctx context.Context) {
	updates, err := l.source.GetUpdates(ctx, -1, 0)
	if err != nil {
		l.logger.Debug().Err(err).Msg("Could not skip command backlog")
		return
	}
	for _, u := range updates {
		l.advance(u.UpdateID)
	}
}

func (l *Listener) advance(updateID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if updateID+1 > l.offset {
		l.offset = updateID + 1
	}
}

func (l *Listener) dispatch(ctx context.Context, u delivery.Update) {
	msg := u.Message
	if msg == nil {
		return
	}
	if strconv.FormatInt(msg.Chat.ID, 10) != l.cfg.ChatID {
		l.logger.Warn().Int64("chat_id", msg.Chat.ID).Msg("Ignoring message from unknown chat")
		return
	}

	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}

	l.mu.RLock()
	cmd, found := l.handlers[name]
	l.mu.RUnlock()
	if !found {
		l.reply(ctx, fmt.Sprintf("Unknown command /%s. Send /help for the list.", name))
		return
	}

	l.logger.Info().Str("command", name).Msg("Running command")
	hctx, cancel := context.WithTimeout(ctx, l.cfg.HandlerTimeout)
	defer cancel()
	if err := l.run(hctx, cmd.handler, args); err != nil {
		l.logger.Error().Err(err).Str("command", name).Msg("Command failed")
		l.reply(ctx, fmt.Sprintf("⚠️ /%s failed: %s", name, err))
	}
}

func (l *Listener) run(ctx context.Context, h Handler, args string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, args)
}

func (l *Listener) reply(ctx context.Context, text string) {
	if err := l.replier.SendText(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn().Err(err).Msg("Failed to send command reply")
	}
}

func (l *Listener) helpText() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.handlers))
	for name := range l.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:")
	for _, name := range names {
		fmt.Fprintf(&b, "\n/%s - %s", name, l.handlers[name].help)
	}
	return b.String()
}

// ParseCommand splits "/export@SafetyBot today" into ("export", "today").
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	word, _, _ = strings.Cut(word, "@")
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(rest), true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
