package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "key_event_notifiers"

	// DefaultBatchSize is the max events read per poll.
	DefaultBatchSize = 50

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 2 * time.Second

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 2 * time.Minute

	deadLetterMaxLen = 10000
)

// Sink delivers a single event. A returned error is final for that event.
type Sink interface {
	Deliver(ctx context.Context, event model.KeyEvent) error
}

// Worker consumes key events from the stream and passes them to a Sink.
type Worker struct {
	redis         *redis.Client
	sink          Sink
	logger        *slog.Logger
	metrics       metrics.Recorder
	consumerID    string
	batchSize     int
	blockTimeout  time.Duration
	claimInterval time.Duration
	claimIdle     time.Duration
	claimStartID  string
	lastClaim     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a new event worker.
func NewWorker(client *redis.Client, sink Sink, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:         client,
		sink:          sink,
		logger:        logger.With("component", "events.worker", "consumer_id", consumerID),
		metrics:       recorder,
		consumerID:    consumerID,
		batchSize:     DefaultBatchSize,
		blockTimeout:  DefaultBlockTimeout,
		claimInterval: DefaultClaimInterval,
		claimIdle:     DefaultClaimIdle,
		claimStartID:  "0-0",
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetClaimIdle overrides the idle threshold for reclaiming pending messages.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

// Run starts the worker loop. Blocks until the context is cancelled or
// Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("event worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("event worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("event worker stopping")
			return nil
		default:
		}

		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("process error", "error", err)
			sleep(ctx, time.Second)
		}
	}
}

// Shutdown stops the worker and waits for the in-flight message.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		w.logger.Info("event worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("event worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// processOnce handles reclaimed messages first, then one fresh read.
func (w *Worker) processOnce(ctx context.Context) error {
	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}

	if len(messages) == 0 {
		messages, err = w.readBatch(ctx)
		if err != nil {
			return err
		}
	}

	for _, msg := range messages {
		if err := w.handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// handle delivers one message. It is acked on success and after
// dead-lettering; a cancelled delivery stays pending for reclaim.
func (w *Worker) handle(ctx context.Context, msg redis.XMessage) error {
	event, reason, err := parseMessage(msg)
	if err != nil {
		w.deadLetter(ctx, msg, reason, err.Error())
		return w.ack(ctx, msg.ID)
	}

	if err := w.sink.Deliver(ctx, event); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Error("event delivery failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		w.deadLetter(ctx, msg, "delivery_failed", err.Error())
		return w.ack(ctx, msg.ID)
	}

	w.metrics.IncEvent(metrics.EventDeliver, metrics.EventSuccess)
	return w.ack(ctx, msg.ID)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, start, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		w.claimStartID = start
	}
	return messages, nil
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// parseMessage decodes a stream entry. The returned reason classifies
// a failure for the dead-letter stream.
func parseMessage(msg redis.XMessage) (model.KeyEvent, string, error) {
	var event model.KeyEvent

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return event, "invalid_format", errors.New("payload field missing or not a string")
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, "unmarshal_error", err
	}
	if err := event.Validate(); err != nil {
		return event, "validation_error", err
	}
	return event, "", nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering key event",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter stream", "message_id", msg.ID, "error", err)
	}

	w.metrics.IncEvent(metrics.EventDeliver, metrics.EventDeadLettered)
}

func (w *Worker) ack(ctx context.Context, id string) error {
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, id).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
