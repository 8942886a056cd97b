// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/safetybot/internal/scheduler"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator. Field names are reported as
// koanf keys so errors can be mapped back to environment variables.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags and then the cross-field rules.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, translateError(fe))
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	validators := []func() error{
		c.validateWatermark,
		c.validateExport,
		c.validateSchedules,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateWatermark() error {
	switch c.Watermark.Backend {
	case "badger":
		if c.Watermark.Path == "" {
			return fmt.Errorf("WATERMARK_PATH is required when WATERMARK_BACKEND=badger")
		}
	case "redis":
		if c.Watermark.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when WATERMARK_BACKEND=redis")
		}
	}
	return nil
}

func (c *Config) validateExport() error {
	if !c.Export.Enabled {
		return nil
	}
	if c.Export.Driver == "postgres" && c.Export.PostgresDSN == "" {
		return fmt.Errorf("EXPORT_POSTGRES_DSN is required when EXPORT_DRIVER=postgres")
	}
	if c.Export.Schedule == "" {
		return fmt.Errorf("EXPORT_SCHEDULE is required when EXPORT_ENABLED=true")
	}
	return nil
}

func (c *Config) validateSchedules() error {
	loc, err := time.LoadLocation(c.Polling.Timezone)
	if err != nil {
		return fmt.Errorf("SAFETYBOT_TIMEZONE: %w", err)
	}
	if c.Export.Enabled {
		if _, err := scheduler.ParseCron(c.Export.Schedule, loc); err != nil {
			return fmt.Errorf("EXPORT_SCHEDULE: %w", err)
		}
	}
	if c.Health.ReportSchedule != "" {
		if _, err := scheduler.ParseCron(c.Health.ReportSchedule, loc); err != nil {
			return fmt.Errorf("HEALTH_REPORT_CRON: %w", err)
		}
	}
	return nil
}

var errorMessageTemplates = map[string]string{
	"required":    "%s is required",
	"required_if": "%s is required",
	"url":         "%s must be a valid URL",
	"timezone":    "%s must be a valid IANA time zone",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

// translateError names the environment variable when there is one.
func translateError(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	field := key
	if envVar := EnvVarFor(key); envVar != "" {
		field = envVar
	}

	if tmpl, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
