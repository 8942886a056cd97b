// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package watermark

import (
	"context"
	"errors"
)

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("watermark backend closed")

// Backend is the key-value persistence the Store is built on. One value per
// key. Save must be durable before it returns.
type Backend interface {
	// Load returns the stored value and whether the key exists.
	Load(ctx context.Context, key string) (uint64, bool, error)
	Save(ctx context.Context, key string, value uint64) error
	Ping(ctx context.Context) error
	Close() error
}
