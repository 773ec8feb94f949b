package cache

import (
	"strings"
	"testing"
	"time"
)

func TestHashIP_Deterministic(t *testing.T) {
	t.Parallel()

	ip := "192.168.1.100"

	hash1 := hashIP(ip)
	hash2 := hashIP(ip)

	if hash1 != hash2 {
		t.Error("Same IP should produce same hash")
	}
}

func TestHashIP_Length(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip   string
	}{
		{"IPv4", "192.168.1.1"},
		{"IPv4 localhost", "127.0.0.1"},
		{"IPv6 localhost", "::1"},
		{"IPv6 full", "2001:0db8:85a3:0000:0000:8a2e:0370:7334"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash := hashIP(tt.ip)
			// hashIP uses first 8 bytes of SHA256, encoded as 16 hex chars
			if len(hash) != 16 {
				t.Errorf("hashIP(%q) length = %d, want 16", tt.ip, len(hash))
			}
		})
	}
}

func TestHashIP_Different(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ip1  string
		ip2  string
	}{
		{"different IPv4", "192.168.1.1", "192.168.1.2"},
		{"different last octet", "10.0.0.1", "10.0.0.2"},
		{"IPv4 vs IPv6", "127.0.0.1", "::1"},
		{"public vs private", "8.8.8.8", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hash1 := hashIP(tt.ip1)
			hash2 := hashIP(tt.ip2)

			if hash1 == hash2 {
				t.Errorf("Different IPs should produce different hashes: %q and %q both produced %s", tt.ip1, tt.ip2, hash1)
			}
		})
	}
}

func TestTaskKey(t *testing.T) {
	t.Parallel()

	if got := TaskKey("0b8f7f0e-6c1e-4a8e-9a55-2f7c6f3b1d11"); got != "task:0b8f7f0e-6c1e-4a8e-9a55-2f7c6f3b1d11" {
		t.Errorf("TaskKey() = %q", got)
	}
}

func TestAdminKeyCacheKey(t *testing.T) {
	t.Parallel()

	const hash = "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$c3Vt"
	k1 := AdminKeyCacheKey("ak_0123456789abcdef0123456789abcdef", hash)
	k2 := AdminKeyCacheKey("ak_0123456789abcdef0123456789abcdef", hash)
	k3 := AdminKeyCacheKey("ak_ffffffffffffffffffffffffffffffff", hash)
	rotated := AdminKeyCacheKey("ak_0123456789abcdef0123456789abcdef", hash+"x")

	if k1 != k2 {
		t.Error("same key should produce same cache key")
	}
	if k1 == k3 {
		t.Error("different keys should produce different cache keys")
	}
	if k1 == rotated {
		t.Error("a rotated hash should produce a different cache key")
	}
	if len(k1) != 64 {
		t.Errorf("cache key length = %d, want 64", len(k1))
	}
	if strings.Contains(k1, "ak_") {
		t.Error("cache key must not contain the raw key")
	}
}

func TestWindowResult(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 12, 0, 30, 0, time.UTC)
	nowMs := now.UnixMilli()
	oldest := now.Add(-40 * time.Second).UnixMilli()

	allowed := windowResult(true, 3, oldest, nowMs, 10, time.Minute)
	if !allowed.Allowed || allowed.Remaining != 7 || allowed.RetryAfter != 0 {
		t.Errorf("allowed result = %+v", allowed)
	}

	denied := windowResult(false, 10, oldest, nowMs, 10, time.Minute)
	if denied.Allowed || denied.Remaining != 0 {
		t.Errorf("denied result = %+v", denied)
	}
	if denied.RetryAfter != 20*time.Second {
		t.Errorf("RetryAfter = %v, want 20s", denied.RetryAfter)
	}
	if !denied.ResetAt.Equal(now.Add(20 * time.Second)) {
		t.Errorf("ResetAt = %v", denied.ResetAt)
	}
}

func TestPoolSize(t *testing.T) {
	t.Parallel()

	if got := poolSize(0); got != 10 {
		t.Errorf("poolSize(0) = %d", got)
	}
	if got := poolSize(4); got != 14 {
		t.Errorf("poolSize(4) = %d", got)
	}
	if got := poolSize(-1); got != 10 {
		t.Errorf("poolSize(-1) = %d", got)
	}
}
