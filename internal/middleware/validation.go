package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

// Header and path limits.
const (
	MaxIdempotencyKeyLength = 128
	MaxRequestIDLength      = 128
	MaxPathIDLength         = 64

	// IdempotencyKeyHeader is the optional header that makes key creation retry-safe.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// Validation errors.
var (
	ErrIdempotencyKeyTooLong = errors.New("idempotency key exceeds maximum length")
	ErrIdempotencyKeyInvalid = errors.New("idempotency key contains invalid characters")
	ErrPathIDInvalid         = errors.New("path identifier is invalid")
)

var (
	// tokenPattern matches opaque client tokens such as UUIDs and ULIDs.
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
	// pathIDPattern matches space, application and key identifiers.
	pathIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidateIdempotencyKey checks a client supplied idempotency key.
// An empty key is valid and disables idempotency.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) > MaxIdempotencyKeyLength {
		return ErrIdempotencyKeyTooLong
	}
	if !tokenPattern.MatchString(key) {
		return ErrIdempotencyKeyInvalid
	}
	return nil
}

// ValidRequestID reports whether an inbound request id may be echoed and logged.
func ValidRequestID(id string) bool {
	return id != "" && len(id) <= MaxRequestIDLength && tokenPattern.MatchString(id)
}

// ValidatePathID checks an identifier taken from the URL path.
func ValidatePathID(id string) error {
	if id == "" || len(id) > MaxPathIDLength || !pathIDPattern.MatchString(id) {
		return ErrPathIDInvalid
	}
	return nil
}

// RequireIdempotencyKeyFormat rejects requests carrying a malformed Idempotency-Key header.
func RequireIdempotencyKeyFormat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ValidateIdempotencyKey(r.Header.Get(IdempotencyKeyHeader)); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidatePathIDs returns middleware that validates the named chi URL
// parameters. Malformed ids answer 404 since no resource can match them.
func ValidatePathIDs(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range params {
				if err := ValidatePathID(chi.URLParam(r, p)); err != nil {
					writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
