package auth

import (
	"errors"
	"strings"
	"testing"
)

const sampleKey = "dp_abcdefgh123456_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

func TestHashKey_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashKey(sampleKey)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[1] != "argon2id" {
		t.Errorf("Expected argon2id algorithm, got: %s", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected v=19, got: %s", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashKey_SaltedAndVerifiable(t *testing.T) {
	t.Parallel()

	hash1, err := HashKey(sampleKey)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	hash2, err := HashKey(sampleKey)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	if hash1 == hash2 {
		t.Error("Same key should produce different hashes due to random salt")
	}

	for _, h := range []string{hash1, hash2} {
		ok, err := VerifyKey(sampleKey, h)
		if err != nil || !ok {
			t.Errorf("VerifyKey = %v, %v", ok, err)
		}
	}

	ok, err := VerifyKey(strings.Replace(sampleKey, "4f8d", "0000", 1), hash1)
	if err != nil {
		t.Fatalf("VerifyKey should not return error for wrong key: %v", err)
	}
	if ok {
		t.Error("Wrong key should not match")
	}
}

func TestVerifyKey_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"wrong format", "not-a-hash", ErrInvalidHash},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash", ErrInvalidHash},
		{"missing parts", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"bad params", "$argon2id$v=19$m=x,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA", ErrInvalidHash},
		{"old version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, err := VerifyKey("key", tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyKey error = %v, want %v", err, tt.wantErr)
			}
			if ok {
				t.Error("invalid hash must not match")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	if Fingerprint(sampleKey) != Fingerprint(sampleKey) {
		t.Error("Fingerprint should be deterministic")
	}
	if Fingerprint("a") == Fingerprint("b") {
		t.Error("Different input should produce different fingerprints")
	}
	for _, in := range []string{"", "abc", strings.Repeat("x", 1000)} {
		if got := len(Fingerprint(in)); got != 32 {
			t.Errorf("Fingerprint length = %d, want 32", got)
		}
	}
}
