// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package media acquires evidentiary media (dashcam video, screenshots) for
// an event as temporary local files.
//
// Every successful Acquire returns one or more *Media that the caller must
// release, typically with a deferred ReleaseAll, on every exit path. Release
// is idempotent.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tomtom215/safetybot/internal/models"
)

var (
	// ErrUnavailable means the event has no usable media. It is not a
	// delivery failure; the event is sent as text.
	ErrUnavailable = errors.New("media unavailable")
	// ErrTooLarge means the media exceeded the size ceiling.
	ErrTooLarge = fmt.Errorf("%w: exceeds size limit", ErrUnavailable)
	// ErrTooSmall means the download was below the sanity floor.
	ErrTooSmall = fmt.Errorf("%w: below minimum size", ErrUnavailable)
)

// Provider acquires media for an event. A nil error means at least one
// file was acquired.
type Provider interface {
	Acquire(ctx context.Context, ev models.Event) ([]*Media, error)
}

// Kind selects how a file is uploaded.
type Kind int

const (
	KindVideo Kind = iota
	KindPhoto
)

func (k Kind) String() string {
	if k == KindPhoto {
		return "photo"
	}
	return "video"
}

// Media is an acquired temporary file.
type Media struct {
	Path  string
	Size  int64
	Label string // e.g. "Front Facing"
	Kind  Kind

	once    sync.Once
	release func() error
	err     error
}

// NewMedia wraps a file with a custom release function. A nil release
// removes the file.
func NewMedia(kind Kind, path string, size int64, label string, release func() error) *Media {
	m := &Media{Path: path, Size: size, Label: label, Kind: kind, release: release}
	if m.release == nil {
		m.release = func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		}
	}
	return m
}

// Release deletes the temporary file. Safe to call more than once and on a
// nil *Media.
func (m *Media) Release() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		m.err = m.release()
	})
	return m.err
}

// ReleaseAll releases every file and joins the errors.
func ReleaseAll(ms []*Media) error {
	var errs []error
	for _, m := range ms {
		if err := m.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", m.Path, err))
		}
	}
	return errors.Join(errs...)
}
