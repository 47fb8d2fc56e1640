package webhook

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// StatusError is returned for a non-2xx response from the endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned %d", e.Code)
}

// Is reports client errors as permanent, except 408 and 429.
func (e *StatusError) Is(target error) bool {
	if target != ErrPermanent {
		return false
	}
	return e.Code >= 400 && e.Code < 500 && e.Code != 408 && e.Code != 429
}
