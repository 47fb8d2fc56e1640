//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keydesk/keydesk/internal/logging"
	"github.com/keydesk/keydesk/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_APIKeysTableSchema(t *testing.T) {
	ctx, pool, _ := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"space_id",
		"name",
		"key_prefix",
		"key_hash",
		"status",
		"owner_id",
		"creator_id",
		"updater_id",
		"updated_at",
		"last_used_at",
		"authorized_app_ids",
		"scopes",
		"expires_at",
		"usage_count",
	}

	for _, col := range expectedColumns {
		col := col
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, pool, "api_keys", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in api_keys table", col)
			}
		})
	}
}

func TestIntegrationMigration_StatusConstraint(t *testing.T) {
	ctx, pool, _ := newMigrationTestEnv(t)

	// EXPIRED is derived at read time and never stored.
	_, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, space_id, name, key_prefix, key_hash, status,
			owner_id, owner_name, creator_id, creator_name, created_at,
			updater_id, updater_name, updated_at)
		VALUES ('k1', 'sp-7', 'n', 'dp_abcdef', 'h', 'EXPIRED',
			'u', 'U', 'u', 'U', NOW(), 'u', 'U', NOW())
	`)
	if err == nil {
		t.Error("Expected check constraint violation for status EXPIRED")
	}
}

func TestIntegrationMigration_Rollback(t *testing.T) {
	ctx, pool, dbURL := newMigrationTestEnv(t)

	if err := MigrateDown(dbURL); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	exists, err := tableExists(ctx, pool, "api_keys")
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if exists {
		t.Error("api_keys table should not exist after rollback")
	}

	if err := Migrate(dbURL, logging.Discard()); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	_, _, dbURL := newMigrationTestEnv(t)

	if err := Migrate(dbURL, logging.Discard()); err != nil {
		t.Fatalf("second apply should not fail: %v", err)
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

// newMigrationTestEnv rolls the schema all the way down and back up so each
// test starts from a freshly migrated database.
func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool, string) {
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

	if err := MigrateDown(dbURL); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if err := Migrate(dbURL, logging.Discard()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	return ctx, pool, dbURL
}
