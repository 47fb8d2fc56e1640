// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/cache"
	"github.com/keydesk/keydesk/internal/clock"
	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/filter"
	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/repository"
	"github.com/keydesk/keydesk/internal/validity"
)

const (
	maxNameLength    = 100
	maxExpiresInDays = 3650
)

// AuthMode selects how authorized applications are chosen.
type AuthMode string

const (
	AuthModeAll    AuthMode = "all"
	AuthModeCustom AuthMode = "custom"
)

// ExpiryMode selects whether a key expires.
type ExpiryMode string

const (
	ExpiryPermanent ExpiryMode = "permanent"
	ExpirySpecified ExpiryMode = "specified"
)

// IdempotencyStore deduplicates retried creates.
// Reserve returns "" when the caller now owns the key, the stored key id when
// the request was already completed, or cache.ErrIdempotencyPending.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, id string) error
	Release(ctx context.Context, key string) error
}

// VerifyCache remembers which key a plaintext fingerprint verified against.
type VerifyCache interface {
	LookupVerified(ctx context.Context, fingerprint string) (string, error)
	RememberVerified(ctx context.Context, fingerprint, keyID string) error
}

// EventPublisher receives lifecycle events after a change is stored.
type EventPublisher interface {
	PublishAsync(event model.KeyEvent)
}

// KeyServiceDeps wires a KeyService. Store, Catalog and Generator are required.
type KeyServiceDeps struct {
	Store       repository.KeyStore
	Catalog     directory.Catalog
	Generator   *auth.Generator
	Clock       clock.Clock
	Location    *time.Location
	Metrics     metrics.Recorder
	Idempotency IdempotencyStore
	VerifyCache VerifyCache
	Events      EventPublisher
	Logger      *slog.Logger
}

// KeyService handles API key lifecycle logic.
type KeyService struct {
	store       repository.KeyStore
	catalog     directory.Catalog
	gen         *auth.Generator
	clock       clock.Clock
	loc         *time.Location
	metrics     metrics.Recorder
	idempotency IdempotencyStore
	verifyCache VerifyCache
	events      EventPublisher
	logger      *slog.Logger
}

// NewKeyService creates a new KeyService.
func NewKeyService(d KeyServiceDeps) *KeyService {
	s := &KeyService{
		store:       d.Store,
		catalog:     d.Catalog,
		gen:         d.Generator,
		clock:       d.Clock,
		loc:         d.Location,
		metrics:     d.Metrics,
		idempotency: d.Idempotency,
		verifyCache: d.VerifyCache,
		events:      d.Events,
		logger:      d.Logger,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}
	if s.idempotency == nil {
		s.idempotency = cache.NewMemoryIdempotency(s.clock.Now)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Now returns the service clock reading.
func (s *KeyService) Now() time.Time {
	return s.clock.Now()
}

// Location returns the timezone used for calendar dates.
func (s *KeyService) Location() *time.Location {
	return s.loc
}

// CreateInput defines input for creating a key.
type CreateInput struct {
	SpaceID    string
	Name       string
	AuthMode   AuthMode
	AppIDs     []string
	ExpiryMode ExpiryMode
	// ExpiresOn is a YYYY-MM-DD date; the key expires at the end of that day.
	ExpiresOn string
	// ExpiresInDays is a shortcut for a date that many days from today.
	ExpiresInDays  int
	Scopes         []model.Scope
	Owner          model.Principal // zero value means the acting principal
	Seed           string          // prefix tag; empty uses the generator default
	IdempotencyKey string
}

// CreateResult is the only value that ever carries a plaintext key.
type CreateResult struct {
	Key    *model.APIKey
	Secret string
}

// UpdateInput defines the editable fields. Nil or empty fields are unchanged.
type UpdateInput struct {
	Name          *string
	AuthMode      AuthMode
	AppIDs        []string
	ExpiryMode    ExpiryMode
	ExpiresOn     string
	ExpiresInDays int
}

// Create issues a new key in a space.
func (s *KeyService) Create(ctx context.Context, principal model.Principal, input CreateInput) (*CreateResult, error) {
	key, err := s.buildKey(ctx, principal, input)
	if err != nil {
		s.reject(err)
		return nil, err
	}

	idemKey := ""
	if input.IdempotencyKey != "" {
		idemKey = principal.ID + ":" + input.SpaceID + ":" + input.IdempotencyKey
		existing, err := s.idempotency.Reserve(ctx, idemKey)
		switch {
		case errors.Is(err, cache.ErrIdempotencyPending):
			return nil, ErrRequestInProgress
		case err != nil:
			s.logger.Warn("idempotency store unavailable, proceeding without deduplication", "error", err)
			idemKey = ""
		case existing != "":
			s.metrics.IncIdempotentReplay()
			return nil, &ReplayError{KeyID: existing}
		}
	}

	generated, err := s.gen.Generate(input.Seed)
	if err != nil {
		s.releaseIdempotency(ctx, idemKey)
		if errors.Is(err, auth.ErrInvalidSeed) {
			err = fmt.Errorf("%w: %v", ErrValidation, err)
			s.reject(err)
			return nil, err
		}
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	key.Prefix = generated.Prefix
	key.KeyHash = generated.Hash

	if err := s.store.Insert(ctx, key); err != nil {
		s.releaseIdempotency(ctx, idemKey)
		return nil, fmt.Errorf("failed to create key: %w", err)
	}

	if idemKey != "" {
		if err := s.idempotency.Complete(ctx, idemKey, key.ID); err != nil {
			s.logger.Warn("failed to record idempotency key", "key_id", key.ID, "error", err)
		}
	}

	s.metrics.IncKeyCreated()
	if key.IsGlobal() && input.AuthMode == AuthModeCustom {
		s.logger.Warn("custom authorization with no applications grants access to all applications",
			"key_id", key.ID,
			"space_id", key.SpaceID,
		)
	}
	s.logger.Info("api key created",
		"key_id", key.ID,
		"space_id", key.SpaceID,
		"prefix", auth.MaskPrefix(key.Prefix),
		"creator_id", key.CreatorID,
	)
	s.emit(model.EventKeyCreated, key, principal)

	return &CreateResult{Key: key, Secret: generated.Plaintext}, nil
}

func (s *KeyService) buildKey(ctx context.Context, principal model.Principal, input CreateInput) (*model.APIKey, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetSpace(ctx, input.SpaceID); err != nil {
		if errors.Is(err, directory.ErrSpaceNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("failed to resolve space: %w", err)
	}

	mode := input.AuthMode
	if mode == "" {
		mode = AuthModeAll
	}
	apps, err := s.resolveApps(ctx, input.SpaceID, mode, input.AppIDs)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt, err := s.resolveExpiry(input.ExpiryMode, input.ExpiresOn, input.ExpiresInDays, now)
	if err != nil {
		return nil, err
	}

	scopes, err := normalizeScopes(input.Scopes)
	if err != nil {
		return nil, err
	}

	owner := input.Owner
	if owner.ID == "" {
		owner = principal
	}
	if owner.Name == "" {
		owner.Name = owner.ID
	}
	if !owner.Fits() {
		return nil, validationError("owner id must be at most %d and name at most %d characters",
			model.MaxPrincipalIDLength, model.MaxPrincipalNameLength)
	}

	key := &model.APIKey{
		ID:               ulid.Make().String(),
		Name:             name,
		Status:           model.KeyStatusActive,
		OwnerID:          owner.ID,
		OwnerName:        owner.Name,
		CreatorID:        principal.ID,
		CreatorName:      principal.Name,
		CreatedAt:        now,
		AuthorizedAppIDs: apps,
		Scopes:           scopes,
		SpaceID:          input.SpaceID,
		ExpiresAt:        expiresAt,
		UsageCount:       0,
	}
	key.Stamp(principal, now)
	return key, nil
}

// Update edits the name, authorized applications or expiry of a key.
// Revoked and expired keys cannot be edited. A failed update leaves the
// stored key unchanged.
func (s *KeyService) Update(ctx context.Context, principal model.Principal, spaceID, id string, input UpdateInput) (*model.APIKey, error) {
	if err := validatePrincipal(principal); err != nil {
		s.reject(err)
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.store.Mutate(ctx, id, func(k *model.APIKey) error {
		if k.SpaceID != spaceID {
			return ErrKeyNotFound
		}
		if !validity.Classify(k, now).Editable {
			return ErrNotEditable
		}

		if input.Name != nil {
			name, err := validateName(*input.Name)
			if err != nil {
				return err
			}
			k.Name = name
		}
		if input.AuthMode != "" {
			apps, err := s.resolveApps(ctx, k.SpaceID, input.AuthMode, input.AppIDs)
			if err != nil {
				return err
			}
			k.AuthorizedAppIDs = apps
		}
		if input.ExpiryMode != "" || input.ExpiresOn != "" || input.ExpiresInDays != 0 {
			expiresAt, err := s.resolveExpiry(input.ExpiryMode, input.ExpiresOn, input.ExpiresInDays, now)
			if err != nil {
				return err
			}
			k.ExpiresAt = expiresAt
		}

		k.Stamp(principal, now)
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		s.reject(err)
		return nil, err
	}

	s.metrics.IncKeyUpdated()
	s.logger.Info("api key updated", "key_id", updated.ID, "space_id", updated.SpaceID, "updater_id", principal.ID)
	s.emit(model.EventKeyUpdated, updated, principal)
	return updated, nil
}

// Revoke permanently disables a key. Revoking an already revoked key only
// refreshes the updater stamp.
func (s *KeyService) Revoke(ctx context.Context, principal model.Principal, spaceID, id string) (*model.APIKey, error) {
	if err := validatePrincipal(principal); err != nil {
		s.reject(err)
		return nil, err
	}

	now := s.clock.Now()
	revoked, err := s.store.Mutate(ctx, id, func(k *model.APIKey) error {
		if k.SpaceID != spaceID {
			return ErrKeyNotFound
		}
		k.Status = model.KeyStatusRevoked
		k.Stamp(principal, now)
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		s.reject(err)
		return nil, err
	}

	s.metrics.IncKeyRevoked()
	s.logger.Info("api key revoked", "key_id", revoked.ID, "space_id", revoked.SpaceID, "updater_id", principal.ID)
	s.emit(model.EventKeyRevoked, revoked, principal)
	return revoked, nil
}

// Get retrieves a key of a space.
func (s *KeyService) Get(ctx context.Context, spaceID, id string) (*model.APIKey, error) {
	key, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if key.SpaceID != spaceID {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// List returns the keys of spec.SpaceID matching spec, newest first.
// The creator filter resolves against principal.
func (s *KeyService) List(ctx context.Context, principal model.Principal, spec filter.Spec) ([]*model.APIKey, error) {
	if _, err := s.catalog.GetSpace(ctx, spec.SpaceID); err != nil {
		if errors.Is(err, directory.ErrSpaceNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("failed to resolve space: %w", err)
	}

	keys, err := s.store.List(ctx, spec.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	spec.PrincipalID = principal.ID
	return filter.Apply(keys, spec, s.clock.Now()), nil
}

// Verify authenticates a plaintext key and records its use.
func (s *KeyService) Verify(ctx context.Context, plaintext string) (*model.APIKey, error) {
	start := time.Now()

	parsed, err := auth.ParseKey(plaintext)
	if err != nil {
		s.metrics.ObserveVerify(metrics.VerifyInvalid, time.Since(start))
		return nil, ErrInvalidKey
	}

	key, err := s.resolveVerified(ctx, plaintext, parsed.Prefix)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			s.metrics.ObserveVerify(metrics.VerifyInvalid, time.Since(start))
		}
		return nil, err
	}

	now := s.clock.Now()
	used, err := s.store.Mutate(ctx, key.ID, func(k *model.APIKey) error {
		if !validity.Classify(k, now).IsUsable() {
			return ErrKeyInactive
		}
		k.UsageCount++
		k.LastUsedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyInactive) {
			s.metrics.ObserveVerify(metrics.VerifyInactive, time.Since(start))
			return nil, ErrKeyInactive
		}
		return nil, mapStoreError(err)
	}

	s.metrics.ObserveVerify(metrics.VerifySuccess, time.Since(start))
	return used, nil
}

// resolveVerified finds the stored key matching plaintext, consulting the
// verification cache before falling back to hash comparison.
func (s *KeyService) resolveVerified(ctx context.Context, plaintext, prefix string) (*model.APIKey, error) {
	fingerprint := auth.Fingerprint(plaintext)

	if s.verifyCache != nil {
		if id, err := s.verifyCache.LookupVerified(ctx, fingerprint); err == nil {
			if key, err := s.store.Get(ctx, id); err == nil && key.Prefix == prefix {
				s.metrics.IncVerifyCacheHit()
				return key, nil
			}
		}
		s.metrics.IncVerifyCacheMiss()
	}

	candidates, err := s.store.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to look up key: %w", err)
	}

	for _, candidate := range candidates {
		ok, err := s.gen.Verify(plaintext, candidate.KeyHash)
		if err != nil {
			s.logger.Warn("stored key hash is unreadable", "key_id", candidate.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if s.verifyCache != nil {
			if err := s.verifyCache.RememberVerified(ctx, fingerprint, candidate.ID); err != nil {
				s.logger.Warn("failed to cache verification", "key_id", candidate.ID, "error", err)
			}
		}
		return candidate, nil
	}

	return nil, ErrInvalidKey
}

func (s *KeyService) resolveApps(ctx context.Context, spaceID string, mode AuthMode, appIDs []string) ([]string, error) {
	switch mode {
	case AuthModeAll:
		return []string{}, nil
	case AuthModeCustom:
	default:
		return nil, validationError("auth_mode must be all or custom, got %q", mode)
	}

	apps := make([]string, 0, len(appIDs))
	for _, id := range appIDs {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(apps, id) {
			continue
		}
		app, err := s.catalog.GetApplication(ctx, id)
		if err != nil {
			if errors.Is(err, directory.ErrApplicationNotFound) {
				return nil, validationError("unknown application %q", id)
			}
			return nil, fmt.Errorf("failed to resolve application: %w", err)
		}
		if app.SpaceID != spaceID {
			return nil, validationError("application %q does not belong to space %q", id, spaceID)
		}
		apps = append(apps, id)
	}
	return apps, nil
}

// resolveExpiry turns the expiry inputs into an instant. An empty mode is
// inferred from whether a date or day count was supplied.
func (s *KeyService) resolveExpiry(mode ExpiryMode, on string, inDays int, now time.Time) (*time.Time, error) {
	if mode == "" {
		mode = ExpiryPermanent
		if on != "" || inDays != 0 {
			mode = ExpirySpecified
		}
	}

	switch mode {
	case ExpiryPermanent:
		return nil, nil
	case ExpirySpecified:
	default:
		return nil, validationError("expiry_mode must be permanent or specified, got %q", mode)
	}

	switch {
	case on != "" && inDays != 0:
		return nil, validationError("expires_on and expires_in_days are mutually exclusive")
	case inDays != 0:
		if inDays < 1 || inDays > maxExpiresInDays {
			return nil, validationError("expires_in_days must be between 1 and %d", maxExpiresInDays)
		}
		on = clock.DateAfterDays(now, inDays, s.loc)
	case on == "":
		return nil, validationError("expires_on is required when expiry_mode is specified")
	}

	expiresAt, err := clock.EndOfDay(on, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if expiresAt.Before(now) {
		return nil, validationError("expires_on %s is in the past", on)
	}
	return &expiresAt, nil
}

// emit hands a lifecycle event to the publisher, if one is configured.
func (s *KeyService) emit(typ model.EventType, key *model.APIKey, actor model.Principal) {
	if s.events == nil {
		return
	}
	s.events.PublishAsync(model.KeyEvent{
		ID:           ulid.Make().String(),
		Type:         typ,
		SpaceID:      key.SpaceID,
		KeyID:        key.ID,
		KeyName:      key.Name,
		MaskedPrefix: auth.MaskPrefix(key.Prefix),
		Status:       key.Status,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		OccurredAt:   s.clock.Now().UTC(),
	})
}

func (s *KeyService) releaseIdempotency(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release idempotency key", "error", err)
	}
}

func (s *KeyService) reject(err error) {
	switch {
	case errors.Is(err, ErrValidation):
		s.metrics.IncKeyRejected("validation")
	case errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrSpaceNotFound):
		s.metrics.IncKeyRejected("not_found")
	case errors.Is(err, ErrNotEditable):
		s.metrics.IncKeyRejected("not_editable")
	}
}

func validatePrincipal(p model.Principal) error {
	if p.IsZero() {
		return validationError("acting principal is required")
	}
	if !p.Fits() {
		return validationError("acting principal id must be at most %d and name at most %d characters",
			model.MaxPrincipalIDLength, model.MaxPrincipalNameLength)
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", validationError("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// normalizeScopes validates and deduplicates scopes. No scopes means read.
func normalizeScopes(scopes []model.Scope) ([]model.Scope, error) {
	if len(scopes) == 0 {
		return []model.Scope{model.ScopeRead}, nil
	}
	out := make([]model.Scope, 0, len(scopes))
	for _, sc := range scopes {
		if !sc.IsValid() {
			return nil, validationError("invalid scope %q", sc)
		}
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		return ErrKeyNotFound
	}
	return err
}
