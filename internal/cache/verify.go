package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// verifyCachePrefix maps a plaintext fingerprint to the key id it verified against.
	verifyCachePrefix = "verify:fp:"
	// VerifyCacheTTL bounds how long a verified fingerprint skips the hash check.
	VerifyCacheTTL = 5 * time.Minute
)

// LookupVerified returns the key id previously verified for fingerprint.
// Returns ErrCacheMiss if the fingerprint is unknown.
func (c *Cache) LookupVerified(ctx context.Context, fingerprint string) (string, error) {
	id, err := c.client.Get(ctx, verifyCachePrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// RememberVerified caches a successful hash verification.
// Only the hash check is skipped on a hit; status and expiry are always
// re-read from the store, so revocation takes effect immediately.
func (c *Cache) RememberVerified(ctx context.Context, fingerprint, keyID string) error {
	return c.client.Set(ctx, verifyCachePrefix+fingerprint, keyID, VerifyCacheTTL).Err()
}
