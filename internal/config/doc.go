// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

/*
Package config loads SafetyBot configuration.

# Configuration Sources

Sources are layered, later ones winning:
  - Struct defaults (defaultConfig)
  - YAML file: CONFIG_PATH, or the first of config.yaml, config.yml,
    /etc/safetybot/config.yaml
  - Environment variables, after a .env file in the working directory is
    loaded (variables already set are not overridden)

Only explicitly mapped environment variables are read; see envMappings.

# Environment Variables

Required:
  - API_KEY: Telemetry API key
  - API_BASE_URL: Telemetry API base URL, e.g. https://api.example.com/v2
  - TELEGRAM_BOT_TOKEN: Bot API token
  - TELEGRAM_CHAT_ID: Destination chat

Polling:
  - CHECK_INTERVAL: Seconds (or a Go duration) between cycles (default: 300)
  - EVENT_PAUSE: Pause between deliveries (default: 3s)
  - MAX_CONSECUTIVE_FAILURES: Failed cycles before a critical alert (default: 5)
  - SAFETYBOT_TIMEZONE: Zone for cron jobs and daily exports (default: UTC)

Storage and integrations:
  - WATERMARK_BACKEND: badger, redis or memory (default: badger)
  - WATERMARK_PATH, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
  - NATS_URL: Publish delivery records over NATS instead of in-process
  - EXPORT_ENABLED, EXPORT_DRIVER (duckdb|postgres), EXPORT_DUCKDB_PATH,
    EXPORT_POSTGRES_DSN, EXPORT_SCHEDULE
  - METRICS_ENABLED, METRICS_ADDR

# Validation

Load validates struct tags with go-playground/validator and then runs
cross-field checks. Errors name the environment variable to fix.
*/
package config
