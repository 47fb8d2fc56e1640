// Package filter applies compound, order-preserving predicates to key collections.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/clock"
	"github.com/keydesk/keydesk/internal/model"
)

// ErrInvalidBucket indicates an unknown bucket value.
var ErrInvalidBucket = errors.New("invalid filter bucket")

// Expiry buckets.
type Expiry string

const (
	ExpiryAll       Expiry = "all"
	ExpiryWithin7d  Expiry = "within7d"
	ExpiryWithin30d Expiry = "within30d"
	ExpiryExpired   Expiry = "expired"
	ExpiryPermanent Expiry = "permanent"
)

// Status buckets. They match on administrative status only.
type Status string

const (
	StatusAll     Status = "all"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Creator buckets.
type Creator string

const (
	CreatorAll  Creator = "all"
	CreatorMine Creator = "mine"
)

// Spec is a compound filter. The zero value of every criterion means
// "no restriction"; SpaceID is always enforced.
type Spec struct {
	SpaceID     string
	Text        string
	AppIDs      []string
	Expiry      Expiry
	Status      Status
	Creator     Creator
	PrincipalID string // resolves CreatorMine
}

// IsDefault reports whether no advanced criterion (apps, expiry, status,
// creator) is active. Text search is not an advanced criterion.
func (s Spec) IsDefault() bool {
	return len(s.AppIDs) == 0 &&
		(s.Expiry == "" || s.Expiry == ExpiryAll) &&
		(s.Status == "" || s.Status == StatusAll) &&
		(s.Creator == "" || s.Creator == CreatorAll)
}

// Reset clears the advanced criteria and keeps the text search.
func (s Spec) Reset() Spec {
	return Spec{
		SpaceID:     s.SpaceID,
		Text:        s.Text,
		PrincipalID: s.PrincipalID,
	}
}

// Apply returns the keys of spec.SpaceID matching every active criterion,
// in input order. The input slice is not modified.
func Apply(keys []*model.APIKey, spec Spec, now time.Time) []*model.APIKey {
	// Text is matched verbatim; surrounding whitespace is significant.
	text := strings.ToLower(spec.Text)

	out := make([]*model.APIKey, 0, len(keys))
	for _, k := range keys {
		if k.SpaceID != spec.SpaceID {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(k.Name), text) {
			continue
		}
		if !matchApps(k, spec.AppIDs) {
			continue
		}
		if !matchStatus(k, spec.Status) {
			continue
		}
		if spec.Creator == CreatorMine && k.CreatorID != spec.PrincipalID {
			continue
		}
		if !matchExpiry(k, spec.Expiry, now) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// matchApps treats a key with no authorized apps as global.
func matchApps(k *model.APIKey, appIDs []string) bool {
	if len(appIDs) == 0 || k.IsGlobal() {
		return true
	}
	for _, id := range k.AuthorizedAppIDs {
		if slices.Contains(appIDs, id) {
			return true
		}
	}
	return false
}

func matchStatus(k *model.APIKey, s Status) bool {
	switch s {
	case StatusActive:
		return k.Status == model.KeyStatusActive
	case StatusRevoked:
		return k.Status == model.KeyStatusRevoked
	default:
		return true
	}
}

func matchExpiry(k *model.APIKey, e Expiry, now time.Time) bool {
	switch e {
	case ExpiryPermanent:
		return k.ExpiresAt == nil
	case ExpiryExpired:
		return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
	case ExpiryWithin7d:
		return within(k.ExpiresAt, now, 7*clock.Day)
	case ExpiryWithin30d:
		return within(k.ExpiresAt, now, 30*clock.Day)
	default:
		return true
	}
}

func within(exp *time.Time, now time.Time, d time.Duration) bool {
	if exp == nil {
		return false
	}
	return !exp.Before(now) && !exp.After(now.Add(d))
}

// ParseExpiry parses an expiry bucket. Short forms "7d" and "30d" are accepted.
// An empty string means ExpiryAll.
func ParseExpiry(s string) (Expiry, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ExpiryAll, nil
	case "7d", "within7d":
		return ExpiryWithin7d, nil
	case "30d", "within30d":
		return ExpiryWithin30d, nil
	case "expired":
		return ExpiryExpired, nil
	case "permanent":
		return ExpiryPermanent, nil
	default:
		return "", fmt.Errorf("%w: expiry %q", ErrInvalidBucket, s)
	}
}

// ParseStatus parses a status bucket. An empty string means StatusAll.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, nil
	case "active":
		return StatusActive, nil
	case "revoked":
		return StatusRevoked, nil
	default:
		return "", fmt.Errorf("%w: status %q", ErrInvalidBucket, s)
	}
}

// ParseCreator parses a creator bucket. "me" is accepted as "mine".
func ParseCreator(s string) (Creator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return CreatorAll, nil
	case "me", "mine":
		return CreatorMine, nil
	default:
		return "", fmt.Errorf("%w: creator %q", ErrInvalidBucket, s)
	}
}
