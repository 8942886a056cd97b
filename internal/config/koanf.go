// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/safetybot/config.yaml",
	"/etc/safetybot/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvFile is loaded before the environment is read, when present.
var DotEnvFile = ".env"

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Envelope:            "native",
			PageSize:            25,
			MaxPages:            1,
			Timeout:             45 * time.Second,
			MaxRetries:          3,
			RequestsPerSecond:   2,
			BreakerFailureRatio: 0.6,
			BreakerOpenTimeout:  5 * time.Minute,
		},
		Telegram: TelegramConfig{
			BaseURL:           "https://api.telegram.org",
			Timeout:           30 * time.Second,
			UploadTimeout:     5 * time.Minute,
			MessagesPerSecond: 1,
			MaxRetries:        3,
		},
		Polling: PollingConfig{
			CheckInterval:    300 * time.Second,
			CycleTimeout:     0, // no limit beyond shutdown
			EventPause:       3 * time.Second,
			FailureThreshold: 5,
			SummaryOnErrors:  true,
			Timezone:         "UTC",
		},
		Media: MediaConfig{
			Enabled:         true,
			TempDir:         "",
			MaxBytes:        50 << 20, // chat upload limit
			DownloadTimeout: 180 * time.Second,
			Attempts:        2,

			ScreenshotTimeout: 60 * time.Second,
		},
		Watermark: WatermarkConfig{
			Backend:   "badger",
			Path:      "data/watermarks",
			KeyPrefix: "safetybot:watermark:",
		},
		Bus: BusConfig{
			QueueGroup: "safetybot",
		},
		Export: ExportConfig{
			Enabled:    false,
			Driver:     "duckdb",
			DuckDBPath: "data/export.duckdb",
			Schedule:   "55 23 * * *",
		},
		Health: HealthConfig{
			ReportSchedule: "0 * * * *",
			StartupTest:    true,
			ProbeTimeout:   30 * time.Second,
		},
		Commands: CommandsConfig{
			Enabled:     true,
			PollTimeout: 30 * time.Second,
			SkipBacklog: true,
		},
		Metrics: MetricsConfig{
			Enabled:           false,
			Addr:              "127.0.0.1:9090",
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, the config file, .env and
// the environment, then validates it.
func Load() (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variables (lowercased) to config keys.
var envMappings = map[string]string{
	"api_key":                   "api.key",
	"api_base_url":              "api.base_url",
	"api_envelope":              "api.envelope",
	"api_page_size":             "api.page_size",
	"api_max_pages":             "api.max_pages",
	"api_timeout":               "api.timeout",
	"api_max_retries":           "api.max_retries",
	"api_rate_limit":            "api.requests_per_second",
	"api_breaker_failure_ratio": "api.breaker_failure_ratio",
	"api_breaker_open_timeout":  "api.breaker_open_timeout",

	"telegram_bot_token":      "telegram.bot_token",
	"telegram_chat_id":        "telegram.chat_id",
	"telegram_api_url":        "telegram.base_url",
	"telegram_timeout":        "telegram.timeout",
	"telegram_upload_timeout": "telegram.upload_timeout",
	"telegram_rate_limit":     "telegram.messages_per_second",
	"telegram_max_retries":    "telegram.max_retries",

	"check_interval":           "polling.check_interval",
	"cycle_timeout":            "polling.cycle_timeout",
	"event_pause":              "polling.event_pause",
	"max_consecutive_failures": "polling.failure_threshold",
	"cycle_summary_on_errors":  "polling.summary_on_errors",
	"safetybot_timezone":       "polling.timezone",

	"media_enabled":          "media.enabled",
	"media_temp_dir":         "media.temp_dir",
	"media_max_bytes":        "media.max_bytes",
	"media_download_timeout": "media.download_timeout",
	"media_attempts":         "media.attempts",
	"screenshot_command":     "media.screenshot_command",
	"screenshot_timeout":     "media.screenshot_timeout",

	"watermark_backend":    "watermark.backend",
	"watermark_path":       "watermark.path",
	"redis_addr":           "watermark.redis_addr",
	"redis_password":       "watermark.redis_password",
	"redis_db":             "watermark.redis_db",
	"watermark_key_prefix": "watermark.key_prefix",

	"nats_url":         "bus.nats_url",
	"nats_queue_group": "bus.queue_group",

	"export_enabled":       "export.enabled",
	"export_driver":        "export.driver",
	"export_duckdb_path":   "export.duckdb_path",
	"export_postgres_dsn":  "export.postgres_dsn",
	"export_schedule":      "export.schedule",
	"health_report_cron":   "health.report_schedule",
	"startup_test":         "health.startup_test",
	"health_probe_timeout": "health.probe_timeout",

	"commands_enabled":      "commands.enabled",
	"commands_poll_timeout": "commands.poll_timeout",
	"commands_skip_backlog": "commands.skip_backlog",

	"metrics_enabled":    "metrics.enabled",
	"metrics_addr":       "metrics.addr",
	"metrics_rate_limit": "metrics.requests_per_minute",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// secondsKeys accept a bare integer meaning seconds, as CHECK_INTERVAL
// always has.
var secondsKeys = map[string]bool{
	"polling.check_interval": true,
	"polling.event_pause":    true,
	"polling.cycle_timeout":  true,
}

// envTransformFunc maps a variable to its config key. Unmapped variables
// return "" and are skipped.
func envTransformFunc(key, value string) (string, any) {
	mapped, ok := envMappings[strings.ToLower(key)]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if secondsKeys[mapped] && isDigits(value) {
		value += "s"
	}
	return mapped, value
}

// EnvVarFor returns the environment variable for a config key, or "".
func EnvVarFor(key string) string {
	for envVar, k := range envMappings {
		if k == key {
			return strings.ToUpper(envVar)
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
