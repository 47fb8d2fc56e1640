package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/keydesk/keydesk/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetAPIKeysSchema drops and recreates the api_keys table from the
// embedded migration files on disk.
func ResetAPIKeysSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}
	dir := filepath.Join(root, "internal", "repository", "migrations")

	for _, name := range []string{"000001_api_keys.down.sql", "000001_api_keys.up.sql"} {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// NewMiniRedis starts an in-process Redis server and returns a client for it.
// Both are closed when the test ends.
func NewMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:             mr.Addr(),
		DisableIndentity: true,
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestAPIKey creates an active, permanent, all-apps test key in spaceID.
func NewTestAPIKey(t testing.TB, spaceID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := UniqueID("key")
	return &model.APIKey{
		ID:               id,
		SpaceID:          spaceID,
		Name:             "Test Key",
		Prefix:           "dp_test" + id[len(id)-7:],
		KeyHash:          "hash-" + id,
		Status:           model.KeyStatusActive,
		OwnerID:          "user-1",
		OwnerName:        "Test User",
		CreatorID:        "user-1",
		CreatorName:      "Test User",
		CreatedAt:        now,
		UpdaterID:        "user-1",
		UpdaterName:      "Test User",
		UpdatedAt:        now,
		AuthorizedAppIDs: []string{},
		Scopes:           []model.Scope{model.ScopeRead, model.ScopeWrite},
	}
}

// NewTestAPIKeyExpiring creates a test key expiring at expiresAt.
func NewTestAPIKeyExpiring(t testing.TB, spaceID string, expiresAt time.Time) *model.APIKey {
	t.Helper()
	key := NewTestAPIKey(t, spaceID)
	key.ExpiresAt = &expiresAt
	return key
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
