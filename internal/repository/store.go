package repository

import (
	"context"
	"errors"

	"github.com/keydesk/keydesk/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
	ErrDuplicateKey   = errors.New("API key already exists")
)

// MutateFunc edits a key in place. Returning an error aborts the mutation
// and leaves the stored record unchanged.
type MutateFunc func(key *model.APIKey) error

// KeyStore is the authoritative key collection.
//
// Returned keys are copies; callers may modify them freely.
type KeyStore interface {
	Insert(ctx context.Context, key *model.APIKey) error
	Get(ctx context.Context, id string) (*model.APIKey, error)
	// List returns the keys of a space, newest first.
	List(ctx context.Context, spaceID string) ([]*model.APIKey, error)
	// FindByPrefix returns candidate keys for verification.
	FindByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	// Mutate applies fn to the key with the given id inside a single
	// serialized boundary and returns the stored result.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*model.APIKey, error)
	Ping(ctx context.Context) error
}
