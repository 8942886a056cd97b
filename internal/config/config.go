// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	Polling   PollingConfig   `koanf:"polling"`
	Media     MediaConfig     `koanf:"media"`
	Watermark WatermarkConfig `koanf:"watermark"`
	Bus       BusConfig       `koanf:"bus"`
	Export    ExportConfig    `koanf:"export"`
	Health    HealthConfig    `koanf:"health"`
	Commands  CommandsConfig  `koanf:"commands"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// APIConfig holds telemetry API settings.
type APIConfig struct {
	Key      string `koanf:"key" validate:"required"`
	BaseURL  string `koanf:"base_url" validate:"required,url"`
	Envelope string `koanf:"envelope" validate:"oneof=native data"`
	PageSize int    `koanf:"page_size" validate:"gte=1,lte=100"`
	MaxPages int    `koanf:"max_pages" validate:"gte=1,lte=20"`

	Timeout           time.Duration `koanf:"timeout" validate:"gte=1s"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`

	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
	BreakerOpenTimeout  time.Duration `koanf:"breaker_open_timeout" validate:"gte=1s"`
}

// TelegramConfig holds chat channel settings.
type TelegramConfig struct {
	BotToken          string        `koanf:"bot_token" validate:"required"`
	ChatID            string        `koanf:"chat_id" validate:"required"`
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gte=1s"`
	UploadTimeout     time.Duration `koanf:"upload_timeout" validate:"gte=1s"`
	MessagesPerSecond float64       `koanf:"messages_per_second" validate:"gt=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
}

// PollingConfig holds cycle settings.
type PollingConfig struct {
	CheckInterval    time.Duration `koanf:"check_interval" validate:"gte=10s"`
	CycleTimeout     time.Duration `koanf:"cycle_timeout" validate:"gte=0"`
	EventPause       time.Duration `koanf:"event_pause" validate:"gte=0"`
	FailureThreshold int           `koanf:"failure_threshold" validate:"gte=1"`
	SummaryOnErrors  bool          `koanf:"summary_on_errors"`
	Timezone         string        `koanf:"timezone" validate:"required,timezone"`
}

// MediaConfig holds video download and screenshot settings.
type MediaConfig struct {
	Enabled         bool          `koanf:"enabled"`
	TempDir         string        `koanf:"temp_dir"`
	MaxBytes        int64         `koanf:"max_bytes" validate:"gte=1048576"`
	DownloadTimeout time.Duration `koanf:"download_timeout" validate:"gte=1s"`
	Attempts        int           `koanf:"attempts" validate:"gte=1,lte=5"`

	// ScreenshotCommand, when set, captures speeding event screenshots. It
	// is run with the event ID appended and must write a PNG to stdout.
	ScreenshotCommand string        `koanf:"screenshot_command"`
	ScreenshotTimeout time.Duration `koanf:"screenshot_timeout" validate:"gte=1s"`
}

// WatermarkConfig selects the watermark backend.
type WatermarkConfig struct {
	Backend       string `koanf:"backend" validate:"oneof=badger redis memory"`
	Path          string `koanf:"path"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	KeyPrefix     string `koanf:"key_prefix"`
}

// BusConfig selects the delivery record transport.
type BusConfig struct {
	NATSURL    string `koanf:"nats_url" validate:"omitempty,url"`
	QueueGroup string `koanf:"queue_group"`
}

// ExportConfig holds daily export settings.
type ExportConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Driver      string `koanf:"driver" validate:"oneof=duckdb postgres"`
	DuckDBPath  string `koanf:"duckdb_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
	Schedule    string `koanf:"schedule"`
}

// HealthConfig holds health reporting settings.
type HealthConfig struct {
	ReportSchedule string        `koanf:"report_schedule"`
	StartupTest    bool          `koanf:"startup_test"`
	ProbeTimeout   time.Duration `koanf:"probe_timeout" validate:"gte=1s"`
}

// CommandsConfig holds chat command listener settings.
type CommandsConfig struct {
	Enabled     bool          `koanf:"enabled"`
	PollTimeout time.Duration `koanf:"poll_timeout" validate:"gte=1s,lte=50s"`
	SkipBacklog bool          `koanf:"skip_backlog"`
}

// MetricsConfig holds the optional Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled           bool   `koanf:"enabled"`
	Addr              string `koanf:"addr" validate:"required_if=Enabled true"`
	RequestsPerMinute int    `koanf:"requests_per_minute" validate:"gte=1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Polling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
