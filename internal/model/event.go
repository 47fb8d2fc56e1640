package model

import (
	"errors"
	"slices"
	"time"
)

// EventType names a key lifecycle event.
type EventType string

const (
	EventKeyCreated EventType = "key.created"
	EventKeyUpdated EventType = "key.updated"
	EventKeyRevoked EventType = "key.revoked"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{EventKeyCreated, EventKeyUpdated, EventKeyRevoked}

// IsValid reports whether et is a known event type.
func (et EventType) IsValid() bool {
	return slices.Contains(ValidEventTypes, et)
}

// KeyEvent records a change applied to an API key.
// It carries the masked prefix only, never the secret or its hash.
type KeyEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	SpaceID      string    `json:"space_id"`
	KeyID        string    `json:"key_id"`
	KeyName      string    `json:"key_name"`
	MaskedPrefix string    `json:"masked_prefix"`
	Status       KeyStatus `json:"status"`
	ActorID      string    `json:"actor_id"`
	ActorName    string    `json:"actor_name"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Validate checks the fields a consumer relies on.
func (e KeyEvent) Validate() error {
	switch {
	case e.ID == "":
		return errors.New("id is required")
	case !e.Type.IsValid():
		return errors.New("unknown event type: " + string(e.Type))
	case e.SpaceID == "":
		return errors.New("space_id is required")
	case e.KeyID == "":
		return errors.New("key_id is required")
	case e.OccurredAt.IsZero():
		return errors.New("occurred_at is required")
	}
	return nil
}
