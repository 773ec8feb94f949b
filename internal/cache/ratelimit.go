package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitIPPrefix is the Redis key prefix for per-IP request logs.
const rateLimitIPPrefix = "ratelimit:generate:"

// RateLimitResult is the outcome of one rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// slidingWindowScript keeps a sorted set of request timestamps (ms) per key.
// Entries older than the window are dropped before counting. A rejected
// request is not recorded.
//
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_ms = now
if oldest[2] then
	oldest_ms = tonumber(oldest[2])
end

return {allowed, count, oldest_ms}
`)

// CheckIPRateLimit allows at most limit requests from ip in any rolling
// window. A non-positive limit disables the check. Raw IPs are never
// stored, and Redis errors fail open.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, limit int, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	if limit <= 0 || window <= 0 {
		return &RateLimitResult{Allowed: true, ResetAt: now}, nil
	}

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 36)

	res, err := slidingWindowScript.Run(ctx, c.client,
		[]string{rateLimitIPPrefix + hashIP(ip)},
		nowMs, window.Milliseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{Allowed: true, Remaining: int64(limit), ResetAt: now.Add(window)}, nil
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	return windowResult(res[0] == 1, res[1], res[2], nowMs, limit, window), nil
}

// windowResult converts the script reply into a RateLimitResult. The window
// frees a slot when the oldest recorded request ages out.
func windowResult(allowed bool, count, oldestMs, nowMs int64, limit int, window time.Duration) *RateLimitResult {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := time.UnixMilli(oldestMs).Add(window)
	out := &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		out.RetryAfter = resetAt.Sub(time.UnixMilli(nowMs))
		if out.RetryAfter < 0 {
			out.RetryAfter = 0
		}
	}
	return out
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
