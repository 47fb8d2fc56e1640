package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/service"
)

const (
	// DefaultMinAuthDuration is the minimum time to spend on key auth to prevent timing attacks.
	DefaultMinAuthDuration = 200 * time.Millisecond

	// PrincipalIDHeader carries the acting user id set by the upstream gateway.
	PrincipalIDHeader = "X-Principal-ID"
	// PrincipalNameHeader carries the acting user display name.
	PrincipalNameHeader = "X-Principal-Name"
)

// PrincipalConfig holds configuration for the principal middleware.
type PrincipalConfig struct {
	Logger      *slog.Logger
	DefaultID   string
	DefaultName string
}

// Principal returns a middleware that resolves the acting principal from
// request headers and injects it into the request context. Requests without
// a principal header act as the configured default principal.
func Principal(cfg PrincipalConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(PrincipalIDHeader))
			name := strings.TrimSpace(r.Header.Get(PrincipalNameHeader))

			if id == "" {
				id, name = cfg.DefaultID, cfg.DefaultName
			} else if name == "" {
				name = id
			}

			principal := model.Principal{ID: id, Name: name}
			if principal.IsZero() || !principal.Fits() {
				cfg.Logger.Warn("principal rejected",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid principal")
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			notePrincipal(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyVerifier authenticates a plaintext API key.
type KeyVerifier interface {
	Verify(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// AuthConfig holds configuration for the API key auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier KeyVerifier
	// MinDuration pads every outcome to the same latency. Zero disables padding.
	MinDuration time.Duration
}

// APIKeyAuth returns a middleware that authenticates requests by API key.
// It extracts the key from the Authorization or X-API-Key header,
// verifies it, and injects the verified key into the request context.
func APIKeyAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < cfg.MinDuration {
					time.Sleep(cfg.MinDuration - elapsed)
				}
			}()

			plaintext := extractAPIKey(r)
			if plaintext == "" {
				logAuthFailure(cfg.Logger, r, "missing_key")
				writeAuthError(w)
				return
			}

			key, err := cfg.Verifier.Verify(r.Context(), plaintext)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrInvalidKey):
					logAuthFailure(cfg.Logger, r, "invalid_key")
				case errors.Is(err, service.ErrKeyInactive):
					logAuthFailure(cfg.Logger, r, "inactive_key")
				default:
					cfg.Logger.Error("key verification error",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
				}
				writeAuthError(w)
				return
			}

			cfg.Logger.Info("authentication successful",
				slog.String("key_id", key.ID),
				slog.String("key_prefix", auth.MaskPrefix(key.Prefix)),
				slog.String("space_id", key.SpaceID),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithVerifiedKey(r.Context(), key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// extractAPIKey extracts the API key from the request.
// Supports both "Authorization: Bearer <key>" and "X-API-Key: <key>" headers.
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
}
