// Package auth hashes and verifies the admin API key.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for new hashes (OWASP minimum).
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16

	// maxMemory caps the cost a configured hash may ask for (1 GiB).
	maxMemory = 1024 * 1024
)

var (
	// ErrInvalidHash indicates the hash format is invalid.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion indicates the hash version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

var b64 = base64.RawStdEncoding

// keyHash is a decoded $argon2id$ PHC string.
type keyHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	sum     []byte
}

func (h keyHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.sum))
}

func (h keyHash) derive(key string) []byte {
	return argon2.IDKey([]byte(key), h.salt, h.time, h.memory, h.threads, uint32(len(h.sum)))
}

// parseKeyHash decodes $argon2id$v=19$m=..,t=..,p=..$<salt>$<sum>.
func parseKeyHash(encoded string) (keyHash, error) {
	var h keyHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return h, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, ErrInvalidHash
	}
	if version != argon2.Version {
		return h, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, ErrInvalidHash
	}
	if h.memory == 0 || h.memory > maxMemory || h.time == 0 || h.threads == 0 {
		return h, fmt.Errorf("%w: cost parameters out of range", ErrInvalidHash)
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return h, ErrInvalidHash
	}
	if h.sum, err = b64.DecodeString(parts[5]); err != nil || len(h.sum) == 0 {
		return h, ErrInvalidHash
	}
	return h, nil
}

// HashAdminKey returns an Argon2id PHC string for key, suitable for
// ADMIN_API_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	h := keyHash{
		memory:  argon2Memory,
		time:    argon2Time,
		threads: argon2Threads,
		salt:    make([]byte, argon2SaltLen),
		sum:     make([]byte, argon2KeyLen),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h.sum = h.derive(key)
	return h.String(), nil
}

// VerifyAdminKey reports whether key matches encodedHash. The comparison
// is constant time.
func VerifyAdminKey(key, encodedHash string) (bool, error) {
	h, err := parseKeyHash(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.derive(key), h.sum) == 1, nil
}
