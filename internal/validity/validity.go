// Package validity classifies API keys by administrative status and expiry.
//
// The classification is a pure function of the key and an instant. It is
// recomputed on every read and never stored.
package validity

import (
	"time"

	"github.com/keydesk/keydesk/internal/clock"
	"github.com/keydesk/keydesk/internal/model"
)

// State is the derived validity of a key at an instant.
type State string

const (
	StateRevoked   State = "revoked"
	StateExpired   State = "expired"
	StateActive    State = "active"
	StatePermanent State = "permanent"
)

// Display labels.
const (
	LabelRevoked   = "revoked"
	LabelExpired   = "expired"
	LabelActive    = "active"
	LabelPermanent = "active, permanent"
)

// Validity is the result of classifying a key.
type Validity struct {
	State State
	Label string
	// RemainingDays is only meaningful for StateActive.
	RemainingDays int
	Editable      bool
}

// Classify derives the validity of key at now.
// Revocation wins over expiry.
func Classify(key *model.APIKey, now time.Time) Validity {
	switch {
	case key.IsRevoked():
		return Validity{State: StateRevoked, Label: LabelRevoked}
	case key.ExpiresAt == nil:
		return Validity{State: StatePermanent, Label: LabelPermanent, Editable: true}
	case key.IsExpiredAt(now):
		return Validity{State: StateExpired, Label: LabelExpired}
	default:
		return Validity{
			State:         StateActive,
			Label:         LabelActive,
			RemainingDays: clock.CeilDays(key.ExpiresAt.Sub(now)),
			Editable:      true,
		}
	}
}

// DisplayStatus maps the validity onto the status enum shown to users.
func (v Validity) DisplayStatus() model.KeyStatus {
	switch v.State {
	case StateRevoked:
		return model.KeyStatusRevoked
	case StateExpired:
		return model.KeyStatusExpired
	default:
		return model.KeyStatusActive
	}
}

// IsUsable reports whether a key in this state may authenticate requests.
func (v Validity) IsUsable() bool {
	return v.State == StateActive || v.State == StatePermanent
}
