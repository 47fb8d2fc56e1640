package auth

import (
	"context"

	"github.com/keydesk/keydesk/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const principalContextKey contextKey = "principal"

// ContextWithPrincipal adds the acting principal to the context.
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the acting principal from the context.
// The second result is false if none is present.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	return p, ok
}

// MustPrincipalFromContext retrieves the acting principal from the context.
// Panics if not present (use only when the principal middleware has run).
func MustPrincipalFromContext(ctx context.Context) model.Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("principal not found in context - ensure principal middleware is applied")
	}
	return p
}

const verifiedKeyContextKey contextKey = "verified_key"

// ContextWithVerifiedKey adds a key that authenticated the request.
func ContextWithVerifiedKey(ctx context.Context, key *model.APIKey) context.Context {
	return context.WithValue(ctx, verifiedKeyContextKey, key)
}

// VerifiedKeyFromContext retrieves the key that authenticated the request.
// Returns nil if the request was not authenticated by a key.
func VerifiedKeyFromContext(ctx context.Context) *model.APIKey {
	key, _ := ctx.Value(verifiedKeyContextKey).(*model.APIKey)
	return key
}
