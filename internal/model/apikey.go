// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// KeyStatus is the administrative status of an API key.
// Only KeyStatusActive and KeyStatusRevoked are ever persisted;
// KeyStatusExpired is derived from ExpiresAt at read time.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusRevoked KeyStatus = "REVOKED"
	KeyStatusExpired KeyStatus = "EXPIRED"
)

// Scope is a permission scope carried by a key.
type Scope string

// Scope constants for API keys.
const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []Scope{ScopeRead, ScopeWrite, ScopeAdmin}

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	return slices.Contains(ValidScopes, s)
}

// APIKey represents an API key entity.
//
// There is deliberately no plaintext field: the secret is only ever carried
// by the create result, never by the stored record.
type APIKey struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Prefix           string     `json:"prefix"`
	KeyHash          string     `json:"-"` // Never serialize
	Status           KeyStatus  `json:"status"`
	OwnerID          string     `json:"owner_id"`
	OwnerName        string     `json:"owner_name"`
	CreatorID        string     `json:"creator_id"`
	CreatorName      string     `json:"creator_name"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdaterID        string     `json:"updater_id"`
	UpdaterName      string     `json:"updater_name"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	AuthorizedAppIDs []string   `json:"authorized_app_ids"` // empty means every application in the space
	Scopes           []Scope    `json:"scopes"`
	SpaceID          string     `json:"space_id"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	UsageCount       int64      `json:"usage_count"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.Status == KeyStatusRevoked
}

// IsExpiredAt returns true if the key has an expiry strictly before now.
func (k *APIKey) IsExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// IsGlobal reports whether the key is authorized for every application in its space.
func (k *APIKey) IsGlobal() bool {
	return len(k.AuthorizedAppIDs) == 0
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *APIKey) HasScope(scope Scope) bool {
	if slices.Contains(k.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(k.Scopes, scope)
}

// Stamp records principal p as the last updater at t.
func (k *APIKey) Stamp(p Principal, t time.Time) {
	k.UpdaterID = p.ID
	k.UpdaterName = p.Name
	k.UpdatedAt = t
}

// Clone returns a deep copy of the key.
func (k *APIKey) Clone() *APIKey {
	if k == nil {
		return nil
	}
	c := *k
	c.AuthorizedAppIDs = slices.Clone(k.AuthorizedAppIDs)
	c.Scopes = slices.Clone(k.Scopes)
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		c.ExpiresAt = &t
	}
	if c.AuthorizedAppIDs == nil {
		c.AuthorizedAppIDs = []string{}
	}
	if c.Scopes == nil {
		c.Scopes = []Scope{}
	}
	return &c
}
