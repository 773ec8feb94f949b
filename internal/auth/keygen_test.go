package auth

import (
	"strings"
	"testing"
)

func TestGenerateAdminKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateAdminKey()
	if err != nil {
		t.Fatalf("GenerateAdminKey failed: %v", err)
	}

	if !strings.HasPrefix(key.Plaintext, AdminKeyPrefix) {
		t.Errorf("key should start with %s, got %s", AdminKeyPrefix, key.Plaintext)
	}
	if len(key.Plaintext) != len(AdminKeyPrefix)+KeySecretLen {
		t.Errorf("key length = %d", len(key.Plaintext))
	}
	if err := ValidateKeyFormat(key.Plaintext); err != nil {
		t.Errorf("generated key should be valid: %v", err)
	}

	match, err := VerifyAdminKey(key.Plaintext, key.Hash)
	if err != nil || !match {
		t.Errorf("hash should verify the plaintext: %v %v", match, err)
	}
}

func TestGenerateAdminKey_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		key, err := GenerateAdminKey()
		if err != nil {
			t.Fatalf("GenerateAdminKey failed: %v", err)
		}
		if seen[key.Plaintext] {
			t.Fatal("duplicate admin key generated")
		}
		seen[key.Plaintext] = true
	}
}

func TestValidateKeyFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   string
		valid bool
	}{
		{"ak_0123456789abcdef0123456789abcdef", true},
		{"ak_0123456789ABCDEF0123456789abcdef", false},
		{"ak_0123", false},
		{"pk_live_abc123_0123456789abcdef0123456789abcdef", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateKeyFormat(tt.key)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateKeyFormat(%q) = %v, want valid=%v", tt.key, err, tt.valid)
		}
	}
}
