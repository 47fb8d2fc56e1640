package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idem:create:"
	pendingMarker     = "pending"

	// IdempotencyTTL is how long an idempotency key is remembered.
	IdempotencyTTL = 24 * time.Hour
)

// ErrIdempotencyPending indicates a request with the same idempotency key is
// still being processed.
var ErrIdempotencyPending = errors.New("request with this idempotency key is in progress")

// Reserve claims an idempotency key. It returns "" when the caller now owns
// the key, or the id recorded by an earlier completed request.
func (c *Cache) Reserve(ctx context.Context, key string) (string, error) {
	rkey := idempotencyPrefix + key

	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.client.SetNX(ctx, rkey, pendingMarker, IdempotencyTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return "", nil
		}

		val, err := c.client.Get(ctx, rkey).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return "", err
		}
		if val == pendingMarker {
			return "", ErrIdempotencyPending
		}
		return val, nil
	}
	return "", ErrIdempotencyPending
}

// Complete records the id produced for a reserved key.
func (c *Cache) Complete(ctx context.Context, key, id string) error {
	return c.client.Set(ctx, idempotencyPrefix+key, id, IdempotencyTTL).Err()
}

// Release drops a reservation after a failed request so it can be retried.
func (c *Cache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, idempotencyPrefix+key).Err()
}

// MemoryIdempotency is the in-process fallback used when Redis is not configured.
type MemoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]idemEntry
	now     func() time.Time
}

type idemEntry struct {
	value   string
	expires time.Time
}

// NewMemoryIdempotency creates an empty in-memory idempotency store.
// A nil now uses time.Now.
func NewMemoryIdempotency(now func() time.Time) *MemoryIdempotency {
	if now == nil {
		now = time.Now
	}
	return &MemoryIdempotency{entries: make(map[string]idemEntry), now: now}
}

// Reserve mirrors Cache.Reserve.
func (m *MemoryIdempotency) Reserve(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.value == pendingMarker {
			return "", ErrIdempotencyPending
		}
		return e.value, nil
	}
	m.entries[key] = idemEntry{value: pendingMarker, expires: now.Add(IdempotencyTTL)}
	return "", nil
}

// Complete mirrors Cache.Complete.
func (m *MemoryIdempotency) Complete(_ context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = idemEntry{value: id, expires: m.now().Add(IdempotencyTTL)}
	return nil
}

// Release mirrors Cache.Release.
func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
