// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package models

import (
	"errors"
	"fmt"
)

// FetchErrorKind categorizes why a source adapter could not produce events.
type FetchErrorKind int

const (
	FetchUnauthorized FetchErrorKind = iota + 1
	FetchForbidden
	FetchNotFound
	FetchTransient
	FetchMalformed
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchUnauthorized:
		return "unauthorized"
	case FetchForbidden:
		return "forbidden"
	case FetchNotFound:
		return "not_found"
	case FetchTransient:
		return "transient"
	case FetchMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by FetchError.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrTransient    = errors.New("transient failure")
	ErrMalformed    = errors.New("malformed response")
)

// FetchError is the tagged error returned by source adapters.
type FetchError struct {
	Kind       FetchErrorKind
	Stream     Stream
	StatusCode int
	Cause      error
}

// NewFetchError builds a FetchError for the given stream.
func NewFetchError(kind FetchErrorKind, stream Stream, status int, cause error) *FetchError {
	return &FetchError{Kind: kind, Stream: stream, StatusCode: status, Cause: cause}
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Stream, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match a FetchError against the package sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == FetchUnauthorized
	case ErrForbidden:
		return e.Kind == FetchForbidden
	case ErrNotFound:
		return e.Kind == FetchNotFound
	case ErrTransient:
		return e.Kind == FetchTransient
	case ErrMalformed:
		return e.Kind == FetchMalformed
	}
	return false
}

// Retryable reports whether a retry could succeed. Only transient failures qualify.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchTransient
}

// IsAuth reports whether err is an authorization (401) or permission (403) failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// FetchKindOf extracts the FetchErrorKind from err, or 0 if err is not a FetchError.
func FetchKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
