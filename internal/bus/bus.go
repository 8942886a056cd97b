// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package bus carries delivery records from the poll cycle to background
// consumers such as the daily export.
//
// The transport is Watermill: an in-process GoChannel by default, or core
// NATS when a server URL is configured so several SafetyBot instances can
// feed one archive. Delivery is at-most-once on both transports.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/safetybot/internal/logging"
	"github.com/tomtom215/safetybot/internal/models"
)

// TopicDeliveries carries one models.DeliveryRecord per accepted event.
const TopicDeliveries = "safetybot.events.accepted"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("bus closed")

// Config selects and tunes the transport.
type Config struct {
	// NATSURL enables the NATS transport when set, e.g. nats://localhost:4222.
	NATSURL          string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration

	// HandlerAttempts bounds how often Consume retries a failing handler
	// before dropping the message. Default 3.
	HandlerAttempts int
	// HandlerRetryDelay is the pause between handler attempts. Default 1s.
	HandlerRetryDelay time.Duration
}

// DefaultConfig returns an in-process configuration.
func DefaultConfig() Config {
	return Config{
		QueueGroup:        "safetybot",
		SubscribersCount:  1,
		AckWaitTimeout:    30 * time.Second,
		CloseTimeout:      30 * time.Second,
		MaxReconnects:     -1,
		ReconnectWait:     2 * time.Second,
		HandlerAttempts:   3,
		HandlerRetryDelay: time.Second,
	}
}

// Bus publishes and consumes delivery records.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	transport  string
	cfg        Config
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New creates a Bus on the configured transport.
func New(cfg Config) (*Bus, error) {
	def := DefaultConfig()
	if cfg.SubscribersCount <= 0 {
		cfg.SubscribersCount = def.SubscribersCount
	}
	if cfg.AckWaitTimeout <= 0 {
		cfg.AckWaitTimeout = def.AckWaitTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.HandlerAttempts <= 0 {
		cfg.HandlerAttempts = def.HandlerAttempts
	}
	if cfg.HandlerRetryDelay <= 0 {
		cfg.HandlerRetryDelay = def.HandlerRetryDelay
	}

	logger := watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "bus"))

	if cfg.NATSURL == "" {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{publisher: ch, subscriber: ch, transport: "gochannel", cfg: cfg, logger: logger}, nil
	}
	return newNATSBus(cfg, logger)
}

func newNATSBus(cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("safetybot"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	// Core NATS: records are an at-most-once feed, no JetStream stream.
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Bus{publisher: pub, subscriber: sub, transport: "nats", cfg: cfg, logger: logger}, nil
}

// Transport returns "gochannel" or "nats".
func (b *Bus) Transport() string {
	return b.transport
}

// PublishDelivery implements orchestrator.Publisher.
func (b *Bus) PublishDelivery(ctx context.Context, rec models.DeliveryRecord) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal delivery record: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("stream", string(rec.Event.Stream))
	msg.Metadata.Set("event_id", rec.Event.Key())
	msg.Metadata.Set("outcome", rec.Outcome)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(TopicDeliveries, msg); err != nil {
		return fmt.Errorf("publish %s: %w", rec.Event.Key(), err)
	}
	return nil
}

// DecodeRecord parses a message payload.
func DecodeRecord(payload []byte) (models.DeliveryRecord, error) {
	var rec models.DeliveryRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("decode delivery record: %w", err)
	}
	if rec.Event.ID <= 0 || rec.Event.Stream == "" {
		return rec, fmt.Errorf("decode delivery record: missing event identity")
	}
	return rec, nil
}

// Consume subscribes to TopicDeliveries and calls handler for each record
// until ctx is canceled. Undecodable messages are dropped; a failing
// handler is retried HandlerAttempts times before the message is dropped.
func (b *Bus) Consume(ctx context.Context, handler func(context.Context, models.DeliveryRecord) error) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	messages, err := b.subscriber.Subscribe(ctx, TopicDeliveries)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicDeliveries, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(ctx, msg, handler)
		}
	}
}

func (b *Bus) handle(ctx context.Context, msg *message.Message, handler func(context.Context, models.DeliveryRecord) error) {
	defer msg.Ack()

	rec, err := DecodeRecord(msg.Payload)
	if err != nil {
		b.logger.Error("Dropping undecodable message", err, watermill.LogFields{"message_uuid": msg.UUID})
		return
	}

	for attempt := 1; attempt <= b.cfg.HandlerAttempts; attempt++ {
		if err = handler(ctx, rec); err == nil {
			return
		}
		if attempt < b.cfg.HandlerAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.HandlerRetryDelay):
			}
		}
	}
	b.logger.Error("Dropping message after handler failures", err, watermill.LogFields{
		"message_uuid": msg.UUID,
		"event":        rec.Event.Key(),
	})
}

// Close shuts down both sides of the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	// GoChannel is both publisher and subscriber.
	if any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	return errors.Join(errs...)
}
