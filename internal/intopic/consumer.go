// Package intopic consumes data engine requests published on a Kafka topic and
// applies them through the same service the HTTP API uses.
package intopic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/dataengine/internal/dataengine"
)

// Message outcome labels.
const (
	StatusOK        = "ok"
	StatusMalformed = "malformed"
	StatusFailed    = "failed"
)

// ErrNoService is returned when a consumer is built without a service.
var ErrNoService = errors.New("intopic: service is required")

type (
	// MessageReader is the subset of *kafka.Reader the consumer needs.
	MessageReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// MessageRecorder counts handled messages by event type and outcome.
	MessageRecorder interface {
		RecordMessage(eventType, status string)
	}

	// Consumer reads in-topic events and dispatches them one at a time. Every
	// message is committed once handled, whatever the outcome.
	Consumer struct {
		reader    MessageReader
		service   *dataengine.Service
		recorder  MessageRecorder
		logger    *slog.Logger
		closeOnce sync.Once
		closeErr  error
	}

	// Option configures a Consumer.
	Option func(*Consumer)
)

// WithRecorder counts messages on recorder.
func WithRecorder(recorder MessageRecorder) Option {
	return func(c *Consumer) {
		c.recorder = recorder
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReader replaces the Kafka reader built from the config.
func WithReader(reader MessageReader) Option {
	return func(c *Consumer) {
		c.reader = reader
	}
}

// NewConsumer builds a consumer group reader for cfg.Topic.
func NewConsumer(cfg *Config, service *dataengine.Service, opts ...Option) (*Consumer, error) {
	if service == nil {
		return nil, ErrNoService
	}

	c := &Consumer{
		service: service,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.reader == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid in-topic configuration: %w", err)
		}

		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
			MaxWait:  cfg.MaxWait,
		})
	}

	return c, nil
}

// Run consumes until ctx is cancelled or the reader fails. Cancellation is a clean
// stop and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("In-topic consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("In-topic consumer stopped")

				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		c.Handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Handle applies a single message and returns its outcome label. Failures are
// logged and counted, never returned.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) string {
	logger := c.logger.With(
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	event, err := ParseEvent(msg.Value)
	if err != nil {
		eventType := "UNKNOWN"
		if event != nil {
			eventType = event.Type.label()
		}

		logger.Warn("Discarding malformed in-topic message",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		c.record(eventType, StatusMalformed)

		return StatusMalformed
	}

	logger = logger.With(
		slog.String("event_type", string(event.Type)),
		slog.String("external_source", event.ExternalSourceName),
	)

	if err := Dispatch(ctx, c.service, event); err != nil {
		status := StatusFailed
		if errors.Is(err, ErrMissingPayload) {
			status = StatusMalformed
		}

		logger.Error("Failed to apply in-topic event",
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		c.record(string(event.Type), status)

		return status
	}

	logger.Debug("Applied in-topic event")
	c.record(string(event.Type), StatusOK)

	return StatusOK
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reader.Close()
	})

	return c.closeErr
}

func (c *Consumer) record(eventType, status string) {
	if c.recorder != nil {
		c.recorder.RecordMessage(eventType, status)
	}
}
