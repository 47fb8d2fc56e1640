package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	advicePrefix = "advice:"
	// AdviceTTL is how long generated advisory text is reused.
	AdviceTTL = time.Hour
)

// GetAdvice returns cached advisory text for a request digest.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetAdvice(ctx context.Context, digest string) (string, error) {
	text, err := c.client.Get(ctx, advicePrefix+digest).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// SetAdvice caches advisory text for a request digest.
func (c *Cache) SetAdvice(ctx context.Context, digest, text string) error {
	return c.client.Set(ctx, advicePrefix+digest, text, AdviceTTL).Err()
}
