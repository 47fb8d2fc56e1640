package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/model"
)

// maxResponseBody bounds how much of a response is drained for reuse.
const maxResponseBody = 4 << 10

// Config configures a Notifier.
type Config struct {
	URL         string
	Secret      string
	MaxAttempts int
	// RetryDelays defaults to DefaultRetryDelays.
	RetryDelays []time.Duration
}

// Notifier posts signed key events to a single endpoint.
type Notifier struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewNotifier creates a Notifier. A nil client uses NewHTTPClient.
func NewNotifier(cfg Config, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelays == nil {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Notifier{
		cfg:     cfg,
		client:  client,
		logger:  logger.With("component", "webhook.notifier", "target_host", ExtractHost(cfg.URL)),
		metrics: recorder,
		now:     time.Now,
	}
}

// Deliver posts event, retrying transient failures up to MaxAttempts.
// Client errors other than 408 and 429 are not retried.
func (n *Notifier) Deliver(ctx context.Context, event model.KeyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = n.send(ctx, event, payload)
		if lastErr == nil {
			n.logger.Debug("webhook delivered", "event_id", event.ID, "attempt", attempt)
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) || IsExhausted(attempt, n.cfg.MaxAttempts) {
			break
		}

		delay := NextRetryDelay(n.cfg.RetryDelays, attempt-1)
		n.logger.Warn("webhook delivery failed, retrying",
			"event_id", event.ID,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", lastErr,
		)
		n.metrics.IncEvent(metrics.EventDeliver, metrics.EventRetried)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("deliver %s: %w", event.ID, lastErr)
}

func (n *Notifier) send(ctx context.Context, event model.KeyEvent, payload []byte) error {
	timestamp := n.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	SetWebhookHeaders(req, HTTPHeaders{
		Signature:  GenerateSignature(n.cfg.Secret, timestamp, payload),
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: event.ID,
		Event:      string(event.Type),
	})

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
