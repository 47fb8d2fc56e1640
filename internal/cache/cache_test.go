package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydesk/keydesk/internal/testutil"
)

func newTestCache(t *testing.T) (*Cache, func(time.Duration)) {
	t.Helper()
	mr, client := testutil.NewMiniRedis(t)
	return NewWithClient(client), mr.FastForward
}

func TestVerifyCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, ff := newTestCache(t)

	_, err := c.LookupVerified(ctx, "fp1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.RememberVerified(ctx, "fp1", "key-1"))
	id, err := c.LookupVerified(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", id)

	ff(VerifyCacheTTL + time.Second)
	_, err = c.LookupVerified(ctx, "fp1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestAdviceCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, ff := newTestCache(t)

	_, err := c.GetAdvice(ctx, "d1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetAdvice(ctx, "d1", "Rotate keys."))
	text, err := c.GetAdvice(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Rotate keys.", text)

	ff(AdviceTTL + time.Second)
	_, err = c.GetAdvice(ctx, "d1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// idempotencyStore is satisfied by both Redis and in-memory implementations.
type idempotencyStore interface {
	Reserve(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, id string) error
	Release(ctx context.Context, key string) error
}

func TestIdempotency(t *testing.T) {
	t.Parallel()

	redisCache, _ := newTestCache(t)
	stores := map[string]idempotencyStore{
		"redis":  redisCache,
		"memory": NewMemoryIdempotency(nil),
	}

	for name, s := range stores {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			id, err := s.Reserve(ctx, "req-1")
			require.NoError(t, err)
			assert.Empty(t, id, "first reservation is owned by the caller")

			_, err = s.Reserve(ctx, "req-1")
			assert.ErrorIs(t, err, ErrIdempotencyPending)

			require.NoError(t, s.Complete(ctx, "req-1", "key-1"))
			id, err = s.Reserve(ctx, "req-1")
			require.NoError(t, err)
			assert.Equal(t, "key-1", id)

			_, err = s.Reserve(ctx, "req-2")
			require.NoError(t, err)
			require.NoError(t, s.Release(ctx, "req-2"))
			id, err = s.Reserve(ctx, "req-2")
			require.NoError(t, err)
			assert.Empty(t, id, "released key can be reserved again")
		})
	}
}

func TestMemoryIdempotency_Expires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryIdempotency(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	_, _ = m.Reserve(ctx, "req")
	require.NoError(t, m.Complete(ctx, "req", "key-1"))

	mu.Lock()
	now = now.Add(IdempotencyTTL + time.Second)
	mu.Unlock()

	id, err := m.Reserve(ctx, "req")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestIdempotency_ConcurrentReserve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	const n = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.Reserve(ctx, "race")
			if err == nil && id == "" {
				mu.Lock()
				owners++
				mu.Unlock()
			} else if err != nil && !errors.Is(err, ErrIdempotencyPending) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, owners)
}

func TestCheckIPRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		res, err := c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be within burst", i)
	}

	res, err := c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	other, err := c.CheckIPRateLimit(ctx, "10.0.0.2", 1, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per IP")

	c.now = func() time.Time { return fixed.Add(2 * time.Second) }
	res, err = c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "bucket refills over time")
}

func TestCheckIPRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, client := testutil.NewMiniRedis(t)
	c := NewWithClient(client)
	mr.Close()

	res, err := c.CheckIPRateLimit(ctx, "10.0.0.1", 1, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestHashIP(t *testing.T) {
	t.Parallel()

	assert.Equal(t, hashIP("192.168.1.100"), hashIP("192.168.1.100"))
	assert.NotEqual(t, hashIP("127.0.0.1"), hashIP("::1"))
	for _, ip := range []string{"192.168.1.1", "::1", "2001:0db8:85a3:0000:0000:8a2e:0370:7334", ""} {
		assert.Len(t, hashIP(ip), 16)
	}
}
