package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/keydesk/keydesk/internal/model"
)

// MemoryStore is an in-process KeyStore. It does not survive restarts.
type MemoryStore struct {
	mu    sync.Mutex
	keys  map[string]*model.APIKey
	order []string // insertion order
}

var _ KeyStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*model.APIKey)}
}

// Insert adds a new key.
func (s *MemoryStore) Insert(_ context.Context, key *model.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key.ID)
	}
	s.keys[key.ID] = key.Clone()
	s.order = append(s.order, key.ID)
	return nil
}

// Get returns a copy of the key with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}
	return key.Clone(), nil
}

// List returns copies of the keys in a space, newest first.
func (s *MemoryStore) List(_ context.Context, spaceID string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]*model.APIKey, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		key := s.keys[s.order[i]]
		if key.SpaceID == spaceID {
			keys = append(keys, key.Clone())
		}
	}
	return keys, nil
}

// FindByPrefix returns copies of the keys with the given prefix.
func (s *MemoryStore) FindByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []*model.APIKey
	for _, id := range s.order {
		if key := s.keys[id]; key.Prefix == prefix {
			keys = append(keys, key.Clone())
		}
	}
	return keys, nil
}

// Mutate applies fn to a working copy under the store lock and commits it
// only if fn succeeds.
func (s *MemoryStore) Mutate(_ context.Context, id string, fn MutateFunc) (*model.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.keys[id]
	if !ok {
		return nil, ErrAPIKeyNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID

	s.keys[id] = working
	return working.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
