// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/safetybot/internal/bus"
	"github.com/tomtom215/safetybot/internal/config"
	"github.com/tomtom215/safetybot/internal/delivery"
	"github.com/tomtom215/safetybot/internal/export"
	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/media"
	"github.com/tomtom215/safetybot/internal/models"
	"github.com/tomtom215/safetybot/internal/orchestrator"
	"github.com/tomtom215/safetybot/internal/scheduler"
	"github.com/tomtom215/safetybot/internal/source"
	"github.com/tomtom215/safetybot/internal/watermark"
)

// openWatermarkStore opens the configured watermark backend.
func openWatermarkStore(ctx context.Context, cfg *config.Config) (*watermark.Store, error) {
	var backend watermark.Backend
	switch cfg.Watermark.Backend {
	case "redis":
		rb, err := watermark.NewRedisBackend(ctx, watermark.RedisConfig{
			Addr:      cfg.Watermark.RedisAddr,
			Password:  cfg.Watermark.RedisPassword,
			DB:        cfg.Watermark.RedisDB,
			KeyPrefix: cfg.Watermark.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		backend = rb
	case "memory":
		logging.Warn().Msg("Memory watermark backend: events will be re-evaluated after a restart")
		backend = watermark.NewMemoryBackend()
	default:
		bb, err := watermark.OpenBadger(cfg.Watermark.Path)
		if err != nil {
			return nil, err
		}
		backend = bb
	}
	logging.Info().Str("backend", cfg.Watermark.Backend).Msg("Watermark store opened")
	return watermark.NewStore(backend), nil
}

// buildAdapters creates one telemetry adapter per stream.
func buildAdapters(cfg *config.Config) []source.Adapter {
	client := source.NewClient(source.ClientConfig{
		APIKey:         cfg.API.Key,
		Timeout:        cfg.API.Timeout,
		MaxRetries:     cfg.API.MaxRetries,
		RequestsPerSec: cfg.API.RequestsPerSecond,
		UserAgent:      "SafetyBot/" + version,
	})
	return source.NewAdapters(client, source.Options{
		BaseURL:  cfg.API.BaseURL,
		Shape:    source.EnvelopeShape(cfg.API.Envelope),
		PageSize: cfg.API.PageSize,
		MaxPages: cfg.API.MaxPages,
		Breaker: source.BreakerConfig{
			FailureRatio: cfg.API.BreakerFailureRatio,
			OpenTimeout:  cfg.API.BreakerOpenTimeout,
		},
	})
}

// apiPingers returns the adapters that can probe the telemetry API.
func apiPingers(adapters []source.Adapter) []health.Pinger {
	pingers := make([]health.Pinger, 0, len(adapters))
	for _, a := range adapters {
		if p, ok := a.(health.Pinger); ok {
			pingers = append(pingers, p)
		}
	}
	return pingers
}

func buildTelegram(cfg *config.Config) (*delivery.TelegramChannel, error) {
	return delivery.NewTelegramChannel(delivery.TelegramConfig{
		BotToken:       cfg.Telegram.BotToken,
		ChatID:         cfg.Telegram.ChatID,
		BaseURL:        cfg.Telegram.BaseURL,
		Timeout:        cfg.Telegram.Timeout,
		UploadTimeout:  cfg.Telegram.UploadTimeout,
		MessagesPerSec: cfg.Telegram.MessagesPerSecond,
	})
}

// buildPipeline wires video providers for the driver-performance streams
// and, when a screenshot command is configured, screenshots for speeding.
func buildPipeline(cfg *config.Config, channel delivery.Channel) (*delivery.Pipeline, error) {
	providers, err := mediaProviders(cfg)
	if err != nil {
		return nil, err
	}
	pc := delivery.DefaultPipelineConfig()
	pc.MaxRetries = cfg.Telegram.MaxRetries
	return delivery.NewPipeline(channel, providers, pc), nil
}

func mediaProviders(cfg *config.Config) (map[models.Stream]media.Provider, error) {
	providers := make(map[models.Stream]media.Provider)
	if !cfg.Media.Enabled {
		return providers, nil
	}
	video := media.NewVideoProvider(media.VideoConfig{
		TempDir:  cfg.Media.TempDir,
		MaxBytes: cfg.Media.MaxBytes,
		Timeout:  cfg.Media.DownloadTimeout,
		Attempts: cfg.Media.Attempts,
	})
	for _, st := range models.PerformanceStreams() {
		providers[st] = video
	}

	if cfg.Media.ScreenshotCommand != "" {
		capturer, err := media.NewCommandCapturer(cfg.Media.ScreenshotCommand, cfg.Media.ScreenshotTimeout)
		if err != nil {
			return nil, fmt.Errorf("screenshot capturer: %w", err)
		}
		// Chat photo uploads are capped at 10 MB, the provider default.
		providers[models.StreamSpeeding] = media.NewScreenshotProvider(capturer, cfg.Media.TempDir, 0)
	}
	return providers, nil
}

// exportComponents groups the optional daily export: the bus carrying
// delivery records, the archive they accumulate into and the exporter.
type exportComponents struct {
	bus         *bus.Bus
	archive     export.Archive
	accumulator *export.Accumulator
	exporter    *export.Exporter
	loc         *time.Location
}

func openExport(ctx context.Context, cfg *config.Config, sender export.Sender) (*exportComponents, error) {
	archive, err := export.Open(ctx, export.Config{
		Driver: cfg.Export.Driver,
		Path:   cfg.Export.DuckDBPath,
		DSN:    cfg.Export.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open export archive: %w", err)
	}

	bc := bus.DefaultConfig()
	bc.NATSURL = cfg.Bus.NATSURL
	if cfg.Bus.QueueGroup != "" {
		bc.QueueGroup = cfg.Bus.QueueGroup
	}
	b, err := bus.New(bc)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create delivery bus: %w", err), archive.Close())
	}

	loc := cfg.Location()
	logging.Info().
		Str("driver", cfg.Export.Driver).
		Str("transport", b.Transport()).
		Str("schedule", cfg.Export.Schedule).
		Msg("Daily export enabled")

	return &exportComponents{
		bus:         b,
		archive:     archive,
		accumulator: export.NewAccumulator(archive),
		exporter:    export.NewExporter(archive, export.CSVRenderer{Location: loc}, sender, loc),
		loc:         loc,
	}, nil
}

// Close closes the bus before the archive so no handler writes to a
// closed archive.
func (e *exportComponents) Close() {
	if err := e.bus.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing delivery bus")
	}
	if err := e.archive.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing export archive")
	}
}

// buildScheduler registers the poll cycle, the health report and, when
// enabled, the daily export.
func buildScheduler(cfg *config.Config, orch *orchestrator.Orchestrator, reporter *health.Reporter, exp *exportComponents) (*scheduler.Scheduler, error) {
	loc := cfg.Location()
	s := scheduler.New()

	if err := s.Add(scheduler.Job{
		Name:       "poll",
		Schedule:   scheduler.Every(cfg.Polling.CheckInterval),
		RunOnStart: true,
		Timeout:    cfg.Polling.CycleTimeout,
		Run: func(ctx context.Context) {
			if _, ran := orch.RunCycle(ctx); !ran {
				logging.Debug().Msg("Cycle already running, tick skipped")
			}
		},
	}); err != nil {
		return nil, err
	}

	if cfg.Health.ReportSchedule != "" {
		sched, err := scheduler.ParseCron(cfg.Health.ReportSchedule, loc)
		if err != nil {
			return nil, fmt.Errorf("health report schedule: %w", err)
		}
		if err := s.Add(scheduler.Job{
			Name:     "health-report",
			Schedule: sched,
			Timeout:  2 * time.Minute,
			Run: func(ctx context.Context) {
				if _, err := reporter.Send(ctx); err != nil {
					logging.Warn().Err(err).Msg("Failed to send health report")
				}
			},
		}); err != nil {
			return nil, err
		}
	}

	if exp != nil {
		sched, err := scheduler.ParseCron(cfg.Export.Schedule, loc)
		if err != nil {
			return nil, fmt.Errorf("export schedule: %w", err)
		}
		if err := s.Add(scheduler.Job{
			Name:     "daily-export",
			Schedule: sched,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) {
				if _, err := exp.exporter.Run(ctx, time.Now().In(exp.loc)); err != nil {
					logging.Error().Err(err).Msg("Daily export failed")
				}
			},
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}
