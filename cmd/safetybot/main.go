// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/safetybot/internal/api"
	"github.com/tomtom215/safetybot/internal/config"
	"github.com/tomtom215/safetybot/internal/health"
	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/orchestrator"
	"github.com/tomtom215/safetybot/internal/supervisor"
	"github.com/tomtom215/safetybot/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("api_base_url", cfg.API.BaseURL).
		Dur("check_interval", cfg.Polling.CheckInterval).
		Str("watermark_backend", cfg.Watermark.Backend).
		Str("timezone", cfg.Polling.Timezone).
		Msg("Starting SafetyBot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openWatermarkStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open watermark store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing watermark store")
		}
	}()

	adapters := buildAdapters(cfg)

	telegram, err := buildTelegram(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure chat channel")
	}
	pipeline, err := buildPipeline(cfg, telegram)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure media")
	}

	// Delivery records only have a consumer when the export is enabled.
	var publisher orchestrator.Publisher
	var exp *exportComponents
	if cfg.Export.Enabled {
		exp, err = openExport(ctx, cfg, telegram)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize export")
		}
		defer exp.Close()
		publisher = exp.bus
	}

	orch := orchestrator.New(adapters, store, pipeline, publisher, orchestrator.Config{
		EventPause:       cfg.Polling.EventPause,
		FailureThreshold: cfg.Polling.FailureThreshold,
		SummaryOnErrors:  cfg.Polling.SummaryOnErrors,
	})

	checker := health.NewChecker(apiPingers(adapters), telegram, orch, store, health.Config{
		CheckInterval:    cfg.Polling.CheckInterval,
		FailureThreshold: cfg.Polling.FailureThreshold,
		ProbeTimeout:     cfg.Health.ProbeTimeout,
		Streams:          orch.Streams(),
	})
	reporter := health.NewReporter(checker, pipeline)

	if cfg.Health.StartupTest {
		startCtx, startCancel := context.WithTimeout(ctx, 2*time.Minute)
		err := reporter.Startup(startCtx, orch.Streams())
		startCancel()
		if err != nil {
			// Without a working chat channel there is nowhere to alert.
			logging.Fatal().Err(err).Msg("Startup connection test failed")
		}
	}

	sched, err := buildScheduler(cfg, orch, reporter, exp)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure scheduler")
	}

	// === BUILD SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if exp != nil {
		tree.AddStateService(services.NewRunService("export-accumulator", func(ctx context.Context) error {
			return exp.accumulator.Run(ctx, exp.bus)
		}, nil))
		logging.Info().Str("transport", exp.bus.Transport()).Msg("Export accumulator added to supervisor tree")
	}

	tree.AddPollingService(services.NewStartStopService("scheduler", sched))
	logging.Info().Strs("jobs", sched.Jobs()).Msg("Scheduler added to supervisor tree")

	if cfg.Commands.Enabled {
		listener := buildCommands(cfg, telegram, orch, reporter, exp)
		tree.AddOpsService(services.NewRunService("chat-commands", listener.Run, isAuthFailure))
		logging.Info().Msg("Chat command listener added to supervisor tree")
	}

	if cfg.Metrics.Enabled {
		router := api.NewRouter(checker, orch, api.RouterConfig{
			RequestsPerMinute: cfg.Metrics.RequestsPerMinute,
			HealthTimeout:     cfg.Health.ProbeTimeout + 15*time.Second,
		})
		server := api.NewServer(cfg.Metrics.Addr, router)
		tree.AddOpsService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("Metrics server added to supervisor tree")
	}

	// === START SUPERVISOR TREE ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The tree result arrives exactly once; the channel is never closed.
	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}
	// Info on a clean stop, error otherwise.
	logging.Err(treeErr).Msg("Supervisor tree stopped")

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("SafetyBot stopped")
}
