//go:build integration

package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/testutil"
)

// ============================================================================
// Postgres KeyStore Integration Tests
// ============================================================================

func TestIntegrationRepository_InsertGet(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	exp := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	key := testutil.NewTestAPIKeyExpiring(t, "sp-7", exp)
	key.AuthorizedAppIDs = []string{"app-1", "app-2"}
	key.Scopes = []model.Scope{model.ScopeRead, model.ScopeAdmin}

	if err := repo.Insert(ctx, key); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.SpaceID != "sp-7" || got.Prefix != key.Prefix || got.KeyHash != key.KeyHash {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.AuthorizedAppIDs) != 2 || got.AuthorizedAppIDs[1] != "app-2" {
		t.Errorf("AuthorizedAppIDs = %v", got.AuthorizedAppIDs)
	}
	if !got.HasScope(model.ScopeWrite) {
		t.Error("admin scope should imply write")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}
	if got.LastUsedAt != nil {
		t.Error("LastUsedAt should be nil initially")
	}
}

func TestIntegrationRepository_GlobalKeyKeepsEmptyApps(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t, "sp-7")
	key.AuthorizedAppIDs = nil
	if err := repo.Insert(ctx, key); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AuthorizedAppIDs == nil || !got.IsGlobal() {
		t.Errorf("expected empty, non-nil app set, got %#v", got.AuthorizedAppIDs)
	}
}

func TestIntegrationRepository_DuplicateInsert(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t, "sp-7")
	if err := repo.Insert(ctx, key); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := repo.Insert(ctx, key); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got: %v", err)
	}
}

func TestIntegrationRepository_GetNotFound(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	_, err := repo.Get(ctx, "nonexistent-key-id")
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationRepository_ListNewestFirst(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	var ids []string
	for i := 0; i < 3; i++ {
		key := testutil.NewTestAPIKey(t, "sp-7")
		key.CreatedAt = key.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := repo.Insert(ctx, key); err != nil {
			t.Fatalf("Insert (%d) failed: %v", i, err)
		}
		ids = append(ids, key.ID)
	}
	other := testutil.NewTestAPIKey(t, "sp-9")
	if err := repo.Insert(ctx, other); err != nil {
		t.Fatalf("Insert other failed: %v", err)
	}

	keys, err := repo.List(ctx, "sp-7")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %d", len(keys))
	}
	if keys[0].ID != ids[2] || keys[2].ID != ids[0] {
		t.Errorf("List order = [%s %s %s], want newest first", keys[0].ID, keys[1].ID, keys[2].ID)
	}
}

func TestIntegrationRepository_FindByPrefix(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t, "sp-7")
	if err := repo.Insert(ctx, key); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	keys, err := repo.FindByPrefix(ctx, key.Prefix)
	if err != nil {
		t.Fatalf("FindByPrefix failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != key.ID {
		t.Errorf("FindByPrefix = %v", keys)
	}
}

func TestIntegrationRepository_MutateCommitAndRollback(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t, "sp-7")
	if err := repo.Insert(ctx, key); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated, err := repo.Mutate(ctx, key.ID, func(k *model.APIKey) error {
		k.Status = model.KeyStatusRevoked
		k.UpdaterID = "user-2"
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !updated.IsRevoked() || updated.UpdaterID != "user-2" {
		t.Errorf("Mutate result = %+v", updated)
	}

	boom := errors.New("boom")
	_, err = repo.Mutate(ctx, key.ID, func(k *model.APIKey) error {
		k.Name = "should not persist"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got: %v", err)
	}

	got, _ := repo.Get(ctx, key.ID)
	if got.Name != key.Name {
		t.Errorf("failed mutation leaked: name = %q", got.Name)
	}
	if !got.IsRevoked() {
		t.Error("committed mutation lost")
	}

	_, err = repo.Mutate(ctx, "missing", func(*model.APIKey) error { return nil })
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationRepository_StatusConstraint(t *testing.T) {
	ctx, repo := newAPIKeyTestEnv(t)

	key := testutil.NewTestAPIKey(t, "sp-7")
	key.Status = model.KeyStatusExpired
	if err := repo.Insert(ctx, key); err == nil {
		t.Error("EXPIRED must never be persisted")
	}
}

func TestIntegrationMigrate_UpIsIdempotent(t *testing.T) {
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := Migrate(dbURL, logger); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := Migrate(dbURL, logger); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newAPIKeyTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetAPIKeysSchema(ctx, pool); err != nil {
		t.Fatalf("reset api_keys schema: %v", err)
	}

	return ctx, NewWithPool(pool)
}
