// Package webhook delivers signed task completion callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMalformedHeader is returned when the signature header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed signature header")
)

const (
	// DefaultReplayWindow is the default replay protection window.
	DefaultReplayWindow = 5 * time.Minute
)

// GenerateSignature creates HMAC-SHA256 signature for webhook payload.
// The canonical string format is: "{timestamp}.{payloadJSON}"
func GenerateSignature(secret string, timestamp int64, payloadJSON []byte) string {
	canonical := fmt.Sprintf("%d.%s", timestamp, string(payloadJSON))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer produces X-Animagen-Signature header values.
type Signer struct {
	secret string
	now    func() time.Time
}

// NewSigner returns nil for an empty secret, which leaves callbacks unsigned.
func NewSigner(secret string) *Signer {
	if secret == "" {
		return nil
	}
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns "t=<unix>,v1=<hex>" for the payload.
func (s *Signer) Sign(payloadJSON []byte) string {
	ts := s.now().Unix()
	return FormatHeader(ts, GenerateSignature(s.secret, ts, payloadJSON))
}

// FormatHeader renders a signature header value.
func FormatHeader(timestamp int64, signature string) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + signature
}

// ParseHeader splits a signature header into its timestamp and v1 signature.
func ParseHeader(header string) (int64, string, error) {
	var (
		ts  int64
		sig string
		err error
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, "", ErrMalformedHeader
		}
		switch key {
		case "t":
			ts, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedHeader
			}
		case "v1":
			sig = value
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", ErrMalformedHeader
	}
	return ts, sig, nil
}

// ValidateSignature verifies webhook signature with replay protection.
func ValidateSignature(secret, signature string, timestamp int64, payloadJSON []byte, replayWindow time.Duration) error {
	now := time.Now().Unix()
	if abs(now-timestamp) > int64(replayWindow.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := GenerateSignature(secret, timestamp, payloadJSON)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}

// VerifyHeader parses and validates a signature header in one step.
func VerifyHeader(secret, header string, payloadJSON []byte, replayWindow time.Duration) error {
	ts, sig, err := ParseHeader(header)
	if err != nil {
		return err
	}
	return ValidateSignature(secret, sig, ts, payloadJSON, replayWindow)
}

// GenerateSecret creates a random 256-bit signing secret, hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
