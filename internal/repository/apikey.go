package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/keydesk/keydesk/internal/model"
)

const apiKeyColumns = `
	id, space_id, name, key_prefix, key_hash, status,
	owner_id, owner_name, creator_id, creator_name, created_at,
	updater_id, updater_name, updated_at, last_used_at,
	authorized_app_ids, scopes, expires_at, usage_count`

// Insert inserts a new API key into the database.
func (r *Repository) Insert(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		key.ID,
		key.SpaceID,
		key.Name,
		key.Prefix,
		key.KeyHash,
		string(key.Status),
		key.OwnerID,
		key.OwnerName,
		key.CreatorID,
		key.CreatorName,
		key.CreatedAt,
		key.UpdaterID,
		key.UpdaterName,
		key.UpdatedAt,
		key.LastUsedAt,
		pq.Array(nonNil(key.AuthorizedAppIDs)),
		pq.Array(scopeStrings(key.Scopes)),
		key.ExpiresAt,
		key.UsageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key.ID)
	}
	return nil
}

// Get retrieves an API key by its ID.
func (r *Repository) Get(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, id))
}

// List retrieves the keys of a space, newest first.
func (r *Repository) List(ctx context.Context, spaceID string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE space_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.queryKeys(ctx, query, spaceID)
}

// FindByPrefix retrieves all API keys matching a prefix.
// Used during verification to find candidate keys.
func (r *Repository) FindByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1`
	return r.queryKeys(ctx, query, prefix)
}

// Mutate locks the row with SELECT ... FOR UPDATE, applies fn and writes the
// mutable columns back in the same transaction.
func (r *Repository) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.APIKey, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 FOR UPDATE`
	key, err := scanAPIKey(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := fn(key); err != nil {
		return nil, err
	}

	update := `
		UPDATE api_keys SET
			name = $2,
			status = $3,
			updater_id = $4,
			updater_name = $5,
			updated_at = $6,
			last_used_at = $7,
			authorized_app_ids = $8,
			expires_at = $9,
			usage_count = $10
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, update,
		id,
		key.Name,
		string(key.Status),
		key.UpdaterID,
		key.UpdaterName,
		key.UpdatedAt,
		key.LastUsedAt,
		pq.Array(nonNil(key.AuthorizedAppIDs)),
		key.ExpiresAt,
		key.UsageCount,
	); err != nil {
		return nil, fmt.Errorf("failed to update API key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	key.ID = id
	return key, nil
}

func (r *Repository) queryKeys(ctx context.Context, query string, arg any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*model.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}
	return keys, nil
}

// scanAPIKey scans a single row (pgx.Row or pgx.Rows) into an APIKey model.
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var (
		key    model.APIKey
		status string
		apps   []string
		scopes []string
	)

	err := row.Scan(
		&key.ID,
		&key.SpaceID,
		&key.Name,
		&key.Prefix,
		&key.KeyHash,
		&status,
		&key.OwnerID,
		&key.OwnerName,
		&key.CreatorID,
		&key.CreatorName,
		&key.CreatedAt,
		&key.UpdaterID,
		&key.UpdaterName,
		&key.UpdatedAt,
		&key.LastUsedAt,
		pq.Array(&apps),
		pq.Array(&scopes),
		&key.ExpiresAt,
		&key.UsageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}

	key.Status = model.KeyStatus(status)
	key.AuthorizedAppIDs = nonNil(apps)
	key.Scopes = make([]model.Scope, 0, len(scopes))
	for _, s := range scopes {
		key.Scopes = append(key.Scopes, model.Scope(s))
	}
	return &key, nil
}

func scopeStrings(scopes []model.Scope) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, string(s))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
