// Package advisory produces short security recommendations for API keys.
//
// Advice is best effort. Providers may fail or time out; the Service always
// answers with some text and never returns an error to its caller.
package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"slices"
	"strings"

	"github.com/keydesk/keydesk/internal/model"
)

// MaxWords caps the length of any advice returned to callers.
const MaxWords = 40

// Fallback texts.
const (
	FallbackOnError = "Prioritize IP whitelisting for keys with write access in production."
	FallbackOnEmpty = "Ensure periodic key rotation and IP-based restrictions for production environments."
)

var (
	ErrProviderUnavailable = errors.New("advisory provider unavailable")
	ErrInferenceTimeout    = errors.New("advisory inference timeout")
	ErrInvalidResponse     = errors.New("advisory provider returned invalid response")
)

// AdviceRequest describes the key being configured.
type AdviceRequest struct {
	Name        string        `json:"name"`
	Scopes      []model.Scope `json:"scopes"`
	Environment string        `json:"environment"`
}

// IsProduction reports whether the request targets a production environment.
func (r AdviceRequest) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(r.Environment))
	return env == "production" || env == "prod"
}

// HasScope reports whether scope was requested.
func (r AdviceRequest) HasScope(scope model.Scope) bool {
	return slices.Contains(r.Scopes, scope)
}

// Digest identifies equivalent requests for caching. Scope order and
// environment case do not matter.
func (r AdviceRequest) Digest(provider string) string {
	scopes := make([]string, 0, len(r.Scopes))
	for _, s := range r.Scopes {
		scopes = append(scopes, string(s))
	}
	slices.Sort(scopes)
	scopes = slices.Compact(scopes)

	h := sha256.New()
	for _, part := range []string{
		provider,
		strings.TrimSpace(r.Name),
		strings.Join(scopes, ","),
		strings.ToLower(strings.TrimSpace(r.Environment)),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Advisor generates advice text.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, req AdviceRequest) (string, error)
}

// Trim normalizes whitespace, strips wrapping quotes and keeps at most
// MaxWords words.
func Trim(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"'`")
	words := strings.Fields(text)
	if len(words) > MaxWords {
		words = words[:MaxWords]
	}
	return strings.Join(words, " ")
}
