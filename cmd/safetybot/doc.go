// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

/*
Package main is the entry point for the SafetyBot poller.

SafetyBot polls a fleet telemetry API for new safety events (speeding,
harsh braking, crashes, seat belt and stop sign violations, distraction,
unsafe lane changes) and posts each new event to a Telegram chat, with the
dashcam video attached when one is available.

# Application Architecture

Long-running components run under a Suture v4 supervisor tree:

	RootSupervisor ("safetybot")
	├── StateSupervisor ("state-layer")
	│   └── export-accumulator (optional, EXPORT_ENABLED=true)
	├── PollingSupervisor ("polling-layer")
	│   └── scheduler (poll cycle, health report, daily export)
	└── OpsSupervisor ("ops-layer")
	    ├── chat-commands (optional, COMMANDS_ENABLED=true)
	    └── metrics-server (optional, METRICS_ENABLED=true)

Component initialization order:

 1. Configuration: Koanf v2 with .env, config.yaml and environment variables
 2. Logging: zerolog with JSON/console output modes
 3. Watermark store: BadgerDB, Redis or memory
 4. Telemetry adapters: one per event stream
 5. Chat channel and delivery pipeline
 6. Delivery bus and export archive (optional)
 7. Orchestrator and health reporter
 8. Startup connection test (optional)
 9. Supervisor tree

# Configuration

Required:
  - API_KEY: telemetry API key
  - TELEGRAM_BOT_TOKEN: bot token
  - TELEGRAM_CHAT_ID: destination chat

Common options:
  - CHECK_INTERVAL: seconds between cycles (default 300)
  - SAFETYBOT_TIMEZONE: zone for message timestamps and export days
  - WATERMARK_BACKEND: badger, redis or memory
  - NATS_URL: publish delivery records to NATS instead of in-process
  - EXPORT_ENABLED, EXPORT_DRIVER: daily CSV export from DuckDB or Postgres

# Signal Handling

SIGINT and SIGTERM cancel the root context. An in-flight cycle stops
before its next delivery; the watermark already reflects every event
that was attempted.

# Example Usage

	export API_KEY=your-api-key
	export TELEGRAM_BOT_TOKEN=123456:your-bot-token
	export TELEGRAM_CHAT_ID=-1001234567890
	./safetybot
*/
package main
