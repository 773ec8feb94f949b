package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/animagen/animagen/internal/model"
)

// Cache key prefixes and TTLs.
const (
	taskKeyPrefix = "task:"

	// DefaultTaskTTL is the TTL for cached task snapshots.
	DefaultTaskTTL = 24 * time.Hour
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// TaskKey returns the Redis key of a task snapshot.
func TaskKey(id string) string {
	return taskKeyPrefix + id
}

// GetTask retrieves a task snapshot from cache.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetTask(ctx context.Context, id string) (*model.Task, error) {
	cmd := c.client.HGetAll(ctx, TaskKey(id))

	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedTask
	if err := cmd.Scan(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached task: %w", err)
	}

	return cached.ToTask(id), nil
}

// SetTask stores a task snapshot, replacing any previous one.
func (c *Cache) SetTask(ctx context.Context, task *model.Task) error {
	key := TaskKey(task.ID)
	cached := task.ToCachedTask()

	fields := map[string]any{
		"status":     cached.Status,
		"progress":   cached.Progress,
		"message":    cached.Message,
		"request":    cached.Request,
		"created_at": cached.CreatedAt,
		"updated_at": cached.UpdatedAt,
	}

	// Only set optional fields if they have values
	if cached.FilePath != "" {
		fields["file_path"] = cached.FilePath
	}
	if cached.FileURL != "" {
		fields["file_url"] = cached.FileURL
	}
	if cached.ErrorMessage != "" {
		fields["error_message"] = cached.ErrorMessage
	}
	if cached.CompletedAt != "" {
		fields["completed_at"] = cached.CompletedAt
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, DefaultTaskTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache task: %w", err)
	}

	return nil
}

// DeleteTask removes task snapshots from cache.
func (c *Cache) DeleteTask(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = TaskKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete task from cache: %w", err)
	}

	return nil
}
