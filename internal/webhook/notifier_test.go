package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydesk/keydesk/internal/logging"
	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func keyEvent() model.KeyEvent {
	return model.KeyEvent{
		ID:           "01J2Z3Y4X5W6V7T8S9R0Q1P2N3",
		Type:         model.EventKeyRevoked,
		SpaceID:      "sp-7",
		KeyID:        "01J2Z3Y4X5W6V7T8S9R0Q1P2N4",
		KeyName:      "ci-runner",
		MaskedPrefix: "dp_ab****",
		Status:       model.KeyStatusRevoked,
		ActorID:      "u-bob",
		ActorName:    "Bob",
		OccurredAt:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newNotifier(url string, rec metrics.Recorder) *Notifier {
	return NewNotifier(Config{
		URL:         url,
		Secret:      testSecret,
		MaxAttempts: 3,
		RetryDelays: []time.Duration{time.Millisecond},
	}, nil, logging.Discard(), rec)
}

func TestNotifier_SignsPayload(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newNotifier(srv.URL, nil).Deliver(context.Background(), keyEvent()))

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "key.revoked", gotHeaders.Get(HeaderEvent))
	assert.Equal(t, keyEvent().ID, gotHeaders.Get(HeaderDeliveryID))
	assert.Equal(t, "Keydesk-Webhook/1.0", gotHeaders.Get("User-Agent"))
	assert.Contains(t, string(gotBody), `"key_id":"01J2Z3Y4X5W6V7T8S9R0Q1P2N4"`)

	ts, err := strconv.ParseInt(gotHeaders.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.NoError(t, ValidateSignature(testSecret, gotHeaders.Get(HeaderSignature), ts, gotBody, DefaultReplayWindow))
}

func TestNotifier_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := metrics.NewInMemory()
	require.NoError(t, newNotifier(srv.URL, rec).Deliver(context.Background(), keyEvent()))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(2), rec.Snapshot().Events["deliver/retried"])
}

func TestNotifier_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newNotifier(srv.URL, nil).Deliver(context.Background(), keyEvent())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.False(t, errors.Is(err, ErrPermanent))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifier_PermanentFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := newNotifier(srv.URL, nil).Deliver(context.Background(), keyEvent())

	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(Config{
		URL:         srv.URL,
		Secret:      testSecret,
		MaxAttempts: 5,
		RetryDelays: []time.Duration{time.Hour},
	}, nil, logging.Discard(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, n.Deliver(ctx, keyEvent()), context.DeadlineExceeded)
}

func TestStatusError_Permanent(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{400, true},
		{401, true},
		{410, true},
		{408, false},
		{429, false},
		{500, false},
		{503, false},
	}
	for _, tt := range tests {
		err := error(&StatusError{Code: tt.code})
		assert.Equal(t, tt.permanent, errors.Is(err, ErrPermanent), tt.code)
	}
}
