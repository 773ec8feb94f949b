//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/animagen/animagen/internal/model"
	"github.com/animagen/animagen/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL, Options{Workers: 1})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return ctx, c
}

func TestIntegrationCache_TaskRoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	task := testutil.NewTestTask(t, "Animate a pendulum swinging with damping")
	if err := c.SetTask(ctx, task); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}

	got, err := c.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != model.TaskStatusPending || got.Request.Prompt != task.Request.Prompt {
		t.Errorf("unexpected cached task: %+v", got)
	}

	ttl, err := c.Client().TTL(ctx, TaskKey(task.ID)).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > DefaultTaskTTL {
		t.Errorf("TTL = %v", ttl)
	}

	// Optional fields cleared by a later snapshot must not linger.
	task.ErrorMessage = "boom"
	if err := c.SetTask(ctx, task); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	task.ErrorMessage = ""
	if err := c.SetTask(ctx, task); err != nil {
		t.Fatalf("SetTask failed: %v", err)
	}
	got, _ = c.GetTask(ctx, task.ID)
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", got.ErrorMessage)
	}

	if err := c.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := c.GetTask(ctx, task.ID); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestIntegrationCache_IPRateLimit(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	ip := "203.0.113.7"
	for i := 0; i < 3; i++ {
		res, err := c.CheckIPRateLimit(ctx, ip, 3, time.Minute)
		if err != nil {
			t.Fatalf("CheckIPRateLimit failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := c.CheckIPRateLimit(ctx, ip, 3, time.Minute)
	if err != nil {
		t.Fatalf("CheckIPRateLimit failed: %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be limited")
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v", res.RetryAfter)
	}

	other, _ := c.CheckIPRateLimit(ctx, "203.0.113.8", 3, time.Minute)
	if !other.Allowed {
		t.Error("a different IP should have its own window")
	}
}

func TestIntegrationCache_AdminKeyVerified(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	key := AdminKeyCacheKey("ak_test", "hash")
	if c.IsAdminKeyVerified(ctx, key) {
		t.Fatal("key should not be verified yet")
	}
	if err := c.MarkAdminKeyVerified(ctx, key); err != nil {
		t.Fatalf("MarkAdminKeyVerified failed: %v", err)
	}
	if !c.IsAdminKeyVerified(ctx, key) {
		t.Error("key should be verified")
	}
}
