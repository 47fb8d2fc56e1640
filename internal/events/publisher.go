// Package events streams key lifecycle events through Redis and hands them
// to a delivery sink.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/model"
)

const (
	// StreamKey is the Redis stream for key lifecycle events.
	StreamKey = "stream:key_events"

	// DeadLetterStreamKey receives events that could not be parsed or delivered.
	DeadLetterStreamKey = "stream:key_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 10000

	// PublishTimeout bounds a single asynchronous publish.
	PublishTimeout = 500 * time.Millisecond
)

// Publisher enqueues key events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "events.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, event model.KeyEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"type":    string(event.Type),
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishAsync publishes without blocking the caller.
// Failures are logged and counted as dropped.
func (p *Publisher) PublishAsync(event model.KeyEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish key event",
				"event_type", event.Type,
				"key_id", event.KeyID,
				"error", err,
			)
			p.metrics.IncEvent(metrics.EventPublish, metrics.EventDropped)
			return
		}

		p.logger.Debug("key event published",
			"event_type", event.Type,
			"key_id", event.KeyID,
			"stream_id", streamID,
		)
		p.metrics.IncEvent(metrics.EventPublish, metrics.EventSuccess)
	}()
}
