// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/safetybot/internal/commands"
	"github.com/tomtom215/safetybot/internal/config"
	"github.com/tomtom215/safetybot/internal/delivery"
	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/orchestrator"
)

// buildCommands registers the chat commands. /export is only available
// when the daily export is enabled.
func buildCommands(cfg *config.Config, tg *delivery.TelegramChannel, orch *orchestrator.Orchestrator, reporter *health.Reporter, exp *exportComponents) *commands.Listener {
	l := commands.NewListener(tg, tg, commands.Config{
		ChatID:      cfg.Telegram.ChatID,
		Wait:        cfg.Commands.PollTimeout,
		SkipBacklog: cfg.Commands.SkipBacklog,
	})

	l.Handle("status", "post a health report", func(ctx context.Context, _ string) error {
		_, err := reporter.Send(ctx)
		return err
	})

	l.Handle("check", "run a polling cycle now", func(ctx context.Context, _ string) error {
		report, ran := orch.RunCycle(ctx)
		if !ran {
			return tg.SendText(ctx, "⏳ A cycle is already running.")
		}
		return tg.SendText(ctx, cycleReply(report))
	})

	if exp != nil {
		l.Handle("export", "send the event export for today or YYYY-MM-DD", func(ctx context.Context, args string) error {
			day, err := parseExportDay(args, exp.loc, time.Now())
			if err != nil {
				return err
			}
			_, err = exp.exporter.Run(ctx, day)
			return err
		})
	}
	return l
}

// cycleReply summarizes a cycle triggered from chat.
func cycleReply(r orchestrator.CycleReport) string {
	icon := "✅"
	if r.Result != orchestrator.ResultSuccess {
		icon = "⚠️"
	}
	accepted := 0
	for _, n := range r.Accepted {
		accepted += n
	}
	msg := fmt.Sprintf("%s Cycle %s in %.1fs\nFetched: %d\nNew: %d\nDelivered: %d\nFailed: %d",
		icon, r.Result, r.Duration.Seconds(), r.Fetched, accepted, r.Delivered, r.Failed)
	if r.Err != nil {
		msg += "\nError: " + r.Err.Error()
	}
	return msg
}

// parseExportDay reads an optional YYYY-MM-DD argument. Empty means today.
func parseExportDay(args string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	args = strings.TrimSpace(args)
	if args == "" {
		return now.In(loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, args, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected a date like %s", now.In(loc).Format(time.DateOnly))
	}
	if day.After(now) {
		return time.Time{}, fmt.Errorf("%s is in the future", args)
	}
	return day, nil
}

// isAuthFailure stops the command listener for good once the bot token is
// rejected; restarting cannot fix it.
func isAuthFailure(err error) bool {
	return delivery.CodeOf(err) == delivery.ErrorCodeAuthFailed
}
