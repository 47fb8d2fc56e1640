package service

import (
	"errors"
	"fmt"
)

// Service errors.
var (
	ErrValidation        = errors.New("validation failed")
	ErrKeyNotFound       = errors.New("API key not found")
	ErrSpaceNotFound     = errors.New("space not found")
	ErrNotEditable       = errors.New("API key is revoked or expired and cannot be edited")
	ErrKeyInactive       = errors.New("API key is revoked or expired")
	ErrInvalidKey        = errors.New("invalid API key")
	ErrIdempotentReplay  = errors.New("request was already processed")
	ErrRequestInProgress = errors.New("request with this idempotency key is in progress")
)

// ReplayError reports a create that was already applied under the same
// idempotency key. The secret of the original key is not available again.
type ReplayError struct {
	KeyID string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("%s: key %s", ErrIdempotentReplay, e.KeyID)
}

func (e *ReplayError) Unwrap() error {
	return ErrIdempotentReplay
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
