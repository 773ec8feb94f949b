package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// authCachePrefix is the Redis key prefix for verified admin keys.
	authCachePrefix = "auth:admin:"
	// authCacheTTL is the time-to-live for a verified admin key.
	authCacheTTL = 5 * time.Minute
)

// AdminKeyCacheKey derives the cache key for a presented admin key checked
// against keyHash. Rotating the configured hash changes every cache key, so
// earlier verifications stop counting. The raw key is never stored.
func AdminKeyCacheKey(rawKey, keyHash string) string {
	h := sha256.New()
	h.Write([]byte(keyHash))
	h.Write([]byte{0})
	h.Write([]byte(rawKey))
	return hex.EncodeToString(h.Sum(nil))
}

// IsAdminKeyVerified reports whether the key passed argon2 verification recently.
// Redis errors are treated as a miss.
func (c *Cache) IsAdminKeyVerified(ctx context.Context, cacheKey string) bool {
	n, err := c.client.Exists(ctx, authCachePrefix+cacheKey).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkAdminKeyVerified remembers a successful verification.
func (c *Cache) MarkAdminKeyVerified(ctx context.Context, cacheKey string) error {
	return c.client.Set(ctx, authCachePrefix+cacheKey, "1", authCacheTTL).Err()
}
