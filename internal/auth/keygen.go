// Package auth provides key material generation, hashing, and principal context for API keys.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Key format: {tag}{padding}_{secret}
// Example: dp_x7k2m9q4ab1c0z_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	DefaultSeed   = "dp_"
	PrefixPadLen  = 14 // Random padding appended to the seed tag
	KeySecretLen  = 32
	maskHeadLen   = 6
	maskTailLen   = 4
	alphabet      = "abcdefghijklmnopqrstuvwxyz0123456789"
	rejectSamples = 252 // largest multiple of len(alphabet) below 256
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidSeed indicates the prefix seed tag is invalid.
	ErrInvalidSeed = errors.New("invalid key prefix seed")

	seedRegex      = regexp.MustCompile(`^[a-z][a-z0-9]{0,7}_$`)
	keyFormatRegex = regexp.MustCompile(`^([a-z][a-z0-9]{0,7}_[a-z0-9]{14})_([a-z0-9]{32})$`)
)

// GeneratedKey contains the parts of a newly generated API key.
type GeneratedKey struct {
	Plaintext string // Full key (show once only)
	Hash      string // Argon2id hash for storage
	Prefix    string // Seed tag plus random padding, used for lookup and masked display
}

// HashFunc hashes a plaintext key for storage.
type HashFunc func(plaintext string) (string, error)

// VerifyFunc checks a plaintext key against a stored hash.
type VerifyFunc func(plaintext, hash string) (bool, error)

// Generator produces key material.
type Generator struct {
	seed   string
	hash   HashFunc
	verify VerifyFunc
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithHasher replaces the argon2id hash/verify pair.
func WithHasher(h HashFunc, v VerifyFunc) GeneratorOption {
	return func(g *Generator) {
		g.hash = h
		g.verify = v
	}
}

// NewGenerator creates a generator whose default seed tag is seed.
// An empty seed uses DefaultSeed.
func NewGenerator(seed string, opts ...GeneratorOption) (*Generator, error) {
	if seed == "" {
		seed = DefaultSeed
	}
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}
	g := &Generator{seed: seed, hash: HashKey, verify: VerifyKey}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ValidateSeed reports whether seed is a usable prefix tag such as "dp_".
func ValidateSeed(seed string) error {
	if !seedRegex.MatchString(seed) {
		return fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}
	return nil
}

// Seed returns the generator's default seed tag.
func (g *Generator) Seed() string {
	return g.seed
}

// Generate creates a new key. An empty seed uses the generator default.
func (g *Generator) Generate(seed string) (*GeneratedKey, error) {
	if seed == "" {
		seed = g.seed
	}
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}

	pad, err := randomString(PrefixPadLen)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomString(KeySecretLen)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	prefix := seed + pad
	plaintext := prefix + "_" + secret

	hash, err := g.hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

// Verify checks plaintext against a stored hash.
func (g *Generator) Verify(plaintext, hash string) (bool, error) {
	return g.verify(plaintext, hash)
}

// ParsedKey contains the parsed parts of an API key.
type ParsedKey struct {
	Prefix string
	Secret string
}

// ParseKey splits a plaintext key at its last separator.
func ParseKey(key string) (*ParsedKey, error) {
	matches := keyFormatRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Prefix: matches[1], Secret: matches[2]}, nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}

// MaskPrefix renders a prefix as first6****last4.
// Prefixes of 10 characters or fewer are returned unchanged.
func MaskPrefix(prefix string) string {
	if len(prefix) <= maskHeadLen+maskTailLen {
		return prefix
	}
	return prefix[:maskHeadLen] + "****" + prefix[len(prefix)-maskTailLen:]
}

// randomString returns n characters from alphabet using crypto/rand with
// rejection sampling.
func randomString(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectSamples {
				continue
			}
			sb.WriteByte(alphabet[int(b)%len(alphabet)])
			if sb.Len() == n {
				break
			}
		}
	}
	return sb.String(), nil
}
