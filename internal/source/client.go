// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/models"
)

const (
	// maxBodySize caps a successful response body.
	maxBodySize = 10 << 20
	// maxErrorBodySize caps how much of an error body is kept for logging.
	maxErrorBodySize = 4 << 10

	defaultUserAgent = "SafetyBot/1.0"
)

// ClientConfig configures the telemetry API client.
type ClientConfig struct {
	APIKey         string
	Timeout        time.Duration // per request, default 45s
	MaxRetries     int           // retries after the first attempt, default 3
	RetryBaseDelay time.Duration // default 2s, doubled per attempt
	MaxRetryDelay  time.Duration // default 30s
	RequestsPerSec float64       // client-side rate limit, default 2
	UserAgent      string
	HTTPClient     *http.Client // optional, mainly for tests
}

// Client performs GET requests against the telemetry API and maps failures
// onto models.FetchError. Only transient failures are retried.
type Client struct {
	http       *http.Client
	apiKey     string
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     zerolog.Logger
}

// NewClient creates a Client, applying defaults for zero values.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:       httpClient,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.MaxRetryDelay,
		logger:     logging.With().Str("component", "telemetry-client").Logger(),
	}
}

// Get fetches endpoint with params and returns the response body. Errors are
// always *models.FetchError tagged with stream.
func (c *Client) Get(ctx context.Context, stream models.Stream, endpoint string, params url.Values) ([]byte, error) {
	reqURL := endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr *models.FetchError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, lastErr)
			c.logger.Warn().
				Str("stream", string(stream)).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying telemetry request")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, models.NewFetchError(models.FetchTransient, stream, 0, ctx.Err())
			}
		}

		body, ferr := c.do(ctx, stream, reqURL)
		if ferr == nil {
			return body, nil
		}
		if !ferr.Retryable() || ctx.Err() != nil {
			return nil, ferr
		}
		lastErr = ferr
	}

	return nil, lastErr
}

// retryAfterError carries a server-provided Retry-After through FetchError.Cause.
type retryAfterError struct {
	status int
	after  time.Duration
	body   string
}

func (e *retryAfterError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

func (c *Client) do(ctx context.Context, stream models.Stream, reqURL string) ([]byte, *models.FetchError) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, models.NewFetchError(models.FetchTransient, stream, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, models.NewFetchError(models.FetchMalformed, stream, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, models.NewFetchError(models.FetchTransient, stream, 0, classifyTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, models.NewFetchError(models.FetchTransient, stream, resp.StatusCode, fmt.Errorf("read body: %w", err))
		}
		return body, nil
	}

	errBody := readBodyForError(resp.Body)
	cause := &retryAfterError{status: resp.StatusCode, body: errBody}
	if resp.StatusCode == http.StatusTooManyRequests {
		cause.after = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return nil, models.NewFetchError(classifyStatus(resp.StatusCode), stream, resp.StatusCode, cause)
}

// classifyStatus maps a non-200 HTTP status onto a fetch error kind.
func classifyStatus(status int) models.FetchErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return models.FetchUnauthorized
	case status == http.StatusForbidden:
		return models.FetchForbidden
	case status == http.StatusNotFound:
		return models.FetchNotFound
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return models.FetchTransient
	case status >= 500:
		return models.FetchTransient
	default:
		return models.FetchMalformed
	}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timeout: %w", err)
	}
	return fmt.Errorf("connection failed: %w", err)
}

// backoff returns the delay before the given retry attempt (1-based),
// honouring Retry-After when the server sent one.
func (c *Client) backoff(attempt int, last *models.FetchError) time.Duration {
	var ra *retryAfterError
	if last != nil && errors.As(last, &ra) && ra.after > 0 {
		if ra.after > c.maxDelay {
			return c.maxDelay
		}
		return ra.after
	}

	delay := c.baseDelay * time.Duration(1<<uint(attempt-1)) //nolint:gosec // attempt is small
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}
