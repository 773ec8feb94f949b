package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAdminKey_PHCFormat(t *testing.T) {
	t.Parallel()

	hash, err := HashAdminKey("ak_0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("HashAdminKey failed: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[1] != "argon2id" || parts[2] != "v=19" || parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("unexpected PHC header: %s", strings.Join(parts[:4], "$"))
	}
}

func TestHashAdminKey_SaltedAndVerifiable(t *testing.T) {
	t.Parallel()

	key := "ak_fedcba9876543210fedcba9876543210"

	hash1, err := HashAdminKey(key)
	if err != nil {
		t.Fatalf("HashAdminKey failed: %v", err)
	}
	hash2, _ := HashAdminKey(key)

	if hash1 == hash2 {
		t.Error("Same key should produce different hashes due to random salt")
	}

	for _, h := range []string{hash1, hash2} {
		match, err := VerifyAdminKey(key, h)
		if err != nil || !match {
			t.Errorf("VerifyAdminKey(%q) = %v, %v", h, match, err)
		}
	}

	match, err := VerifyAdminKey(key+"0", hash1)
	if err != nil {
		t.Fatalf("wrong key should not error: %v", err)
	}
	if match {
		t.Error("wrong key should not match")
	}
}

func TestVerifyAdminKey_InvalidHash(t *testing.T) {
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
		{"zero cost", "$argon2id$v=19$m=0,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"cost too high", "$argon2id$v=19$m=4194304,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"empty sum", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$", ErrInvalidHash},
		{"wrong version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := VerifyAdminKey("ak_key", tt.hash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyAdminKey error = %v, want %v", err, tt.wantErr)
			}
			if match {
				t.Error("invalid hash should never match")
			}
		})
	}
}
