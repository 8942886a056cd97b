// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package delivery sends formatted events and operational notices to the
// chat channel.
//
// The Pipeline owns the per-event flow: acquire media, format, send with
// bounded retries, fall back to text when the upload is rejected, and
// release the media on every exit path.
//
// Channels classify every failure as a *SendError carrying a code and a
// transient flag. Only transient errors are retried:
//   - RATE_LIMITED (honours the server's retry_after)
//   - SERVER_ERROR
//   - TIMEOUT
//   - CONNECTION_FAILED
//
// Security: the bot token is part of the request URL and is never logged.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Channel is a chat destination.
type Channel interface {
	// Name returns the channel identifier, e.g. "telegram".
	Name() string

	// SendText posts a plain text message.
	SendText(ctx context.Context, text string) error

	// SendVideo uploads the file at path with a caption.
	SendVideo(ctx context.Context, caption, path string) error

	// SendPhoto uploads the image at path with a caption.
	SendPhoto(ctx context.Context, caption, path string) error

	// SendDocument uploads an in-memory file.
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error

	// Ping verifies the channel credentials without posting anything.
	Ping(ctx context.Context) error
}

// Error codes for delivery failures.
const (
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeContentTooLarge  = "CONTENT_TOO_LARGE"
	ErrorCodeInvalidRequest   = "INVALID_REQUEST"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeUnknown          = "UNKNOWN"
)

// SendError is a classified channel failure.
type SendError struct {
	Code        string
	StatusCode  int
	Description string
	Transient   bool
	RetryAfter  time.Duration
	Err         error
}

func (e *SendError) Error() string {
	msg := e.Description
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("send failed: %s (HTTP %d): %s", e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("send failed: %s: %s", e.Code, msg)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// newSendError builds a SendError with the transient flag derived from code.
func newSendError(code string, status int, description string, err error) *SendError {
	return &SendError{
		Code:        code,
		StatusCode:  status,
		Description: description,
		Transient:   isTransientCode(code),
		Err:         err,
	}
}

// CodeOf returns the error code of a *SendError in err's chain, or
// ErrorCodeUnknown.
func CodeOf(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorCodeUnknown
}

// IsTransient reports whether err is a retryable *SendError.
func IsTransient(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Transient
}

func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeServerError:
		return true
	default:
		return false
	}
}

// classifyTransportError classifies an error returned by http.Client.Do.
func classifyTransportError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorCodeUnknown
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return ErrorCodeTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "refused") ||
		strings.Contains(errStr, "EOF") || strings.Contains(errStr, "no such host") {
		return ErrorCodeConnectionFailed
	}
	return ErrorCodeUnknown
}

// classifyHTTPStatusCode classifies a status code when the body carried no
// usable API error.
func classifyHTTPStatusCode(code int) string {
	switch {
	case code == 401 || code == 403:
		return ErrorCodeAuthFailed
	case code == 408:
		return ErrorCodeTimeout
	case code == 413:
		return ErrorCodeContentTooLarge
	case code == 429:
		return ErrorCodeRateLimited
	case code >= 500:
		return ErrorCodeServerError
	case code >= 400:
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeUnknown
	}
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
