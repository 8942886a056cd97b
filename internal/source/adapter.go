// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package source fetches events from the fleet telemetry API.
//
// There is one Adapter per stream: the speeding feed plus one adapter per
// driver-performance subtype, so a failing subtype never holds back the
// watermark progression of the others. Adapters return *models.FetchError
// for every failure and never panic on unexpected response shapes.
package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/metrics"
	"github.com/tomtom215/safetybot/internal/models"
)

// Adapter fetches the current page(s) of one stream.
type Adapter interface {
	Stream() models.Stream
	Fetch(ctx context.Context) ([]models.Event, error)
}

// Getter is the HTTP surface adapters need. *Client implements it.
type Getter interface {
	Get(ctx context.Context, stream models.Stream, endpoint string, params url.Values) ([]byte, error)
}

// EnvelopeShape selects how responses are unwrapped.
type EnvelopeShape string

const (
	// ShapeNative is {"speeding_events": [...]} / {"driver_performance_events": [...]}.
	ShapeNative EnvelopeShape = "native"
	// ShapeData is {"data": [...]}.
	ShapeData EnvelopeShape = "data"
)

// Options configures all adapters built by NewAdapters.
type Options struct {
	BaseURL  string
	Shape    EnvelopeShape
	PageSize int // default 25
	MaxPages int // default 1; later pages are fetched only while pages are full
	Breaker  BreakerConfig
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 25
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 1
	}
	if o.Shape == "" {
		o.Shape = ShapeNative
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return o
}

// HTTPAdapter is the Adapter for one stream of the telemetry REST API.
type HTTPAdapter struct {
	stream   models.Stream
	getter   Getter
	endpoint string
	params   url.Values
	envelope Envelope
	pageSize int
	maxPages int
	breaker  *breaker
	logger   zerolog.Logger
}

// NewSpeedingAdapter builds the speeding feed adapter. The speeding feed is
// only served by the v1 API, so a /v2 base URL is rewritten to /v1.
func NewSpeedingAdapter(getter Getter, opts Options) *HTTPAdapter {
	opts = opts.withDefaults()
	env := SpeedingEnvelope
	if opts.Shape == ShapeData {
		env = DataEnvelope(SpeedingEnvelope.Wrapper)
	}
	base := strings.Replace(opts.BaseURL, "/v2", "/v1", 1)
	return newHTTPAdapter(models.StreamSpeeding, getter, base+"/speeding_events", url.Values{}, env, opts)
}

// NewPerformanceAdapter builds the adapter for one driver-performance subtype.
func NewPerformanceAdapter(getter Getter, stream models.Stream, opts Options) *HTTPAdapter {
	opts = opts.withDefaults()
	env := PerformanceEnvelope
	if opts.Shape == ShapeData {
		env = DataEnvelope(PerformanceEnvelope.Wrapper)
	}
	params := url.Values{}
	params.Set("event_types", string(stream))
	params.Set("media_required", "true")
	return newHTTPAdapter(stream, getter, opts.BaseURL+"/driver_performance_events", params, env, opts)
}

// NewAdapters returns adapters for every stream, speeding first.
func NewAdapters(getter Getter, opts Options) []Adapter {
	adapters := []Adapter{NewSpeedingAdapter(getter, opts)}
	for _, st := range models.PerformanceStreams() {
		adapters = append(adapters, NewPerformanceAdapter(getter, st, opts))
	}
	return adapters
}

func newHTTPAdapter(stream models.Stream, getter Getter, endpoint string, params url.Values, env Envelope, opts Options) *HTTPAdapter {
	return &HTTPAdapter{
		stream:   stream,
		getter:   getter,
		endpoint: endpoint,
		params:   params,
		envelope: env,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		breaker:  newBreaker("telemetry-"+string(stream), opts.Breaker),
		logger:   logging.With().Str("component", "source").Str("stream", string(stream)).Logger(),
	}
}

// Stream implements Adapter.
func (a *HTTPAdapter) Stream() models.Stream {
	return a.stream
}

// Fetch implements Adapter. Pages may overlap when new events arrive
// between page requests; the cycle dedup set absorbs the duplicates.
func (a *HTTPAdapter) Fetch(ctx context.Context) ([]models.Event, error) {
	start := time.Now()
	events, err := a.breaker.execute(a.stream, func() ([]models.Event, error) {
		return a.fetchPages(ctx)
	})

	kind := ""
	if err != nil {
		kind = models.FetchKindOf(err).String()
	}
	metrics.RecordFetch(string(a.stream), len(events), kind, time.Since(start))

	if err != nil {
		return nil, err
	}
	return events, nil
}

func (a *HTTPAdapter) fetchPages(ctx context.Context) ([]models.Event, error) {
	var all []models.Event
	for page := 1; page <= a.maxPages; page++ {
		body, err := a.getter.Get(ctx, a.stream, a.endpoint, a.pageParams(page))
		if err != nil {
			return nil, err
		}
		events, err := Normalize(body, a.envelope, a.stream, a.logger)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)

		if len(events) < a.pageSize {
			break
		}
	}

	a.logger.Debug().Int("events", len(all)).Msg("Fetched events")
	if all == nil {
		all = []models.Event{}
	}
	return all, nil
}

func (a *HTTPAdapter) pageParams(page int) url.Values {
	params := url.Values{}
	for k, v := range a.params {
		params[k] = append([]string(nil), v...)
	}
	params.Set("per_page", strconv.Itoa(a.pageSize))
	params.Set("page_no", strconv.Itoa(page))
	return params
}

// Ping requests the first page without the breaker or normalization, to
// check reachability and credentials.
func (a *HTTPAdapter) Ping(ctx context.Context) error {
	_, err := a.getter.Get(ctx, a.stream, a.endpoint, a.pageParams(1))
	return err
}

// BreakerOpen reports whether the adapter's circuit breaker is open.
func (a *HTTPAdapter) BreakerOpen() bool {
	return a.breaker.open()
}
