// Package cache holds task snapshots, rate-limit counters and verified admin
// keys in Redis. The same client backs the render job stream.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// idleConns is the number of connections kept warm for request handlers.
const idleConns = 2

// Options tunes the Redis connection pool.
type Options struct {
	// Workers is the number of render workers sharing the client.
	// Each one holds a connection while blocked on the job stream.
	Workers int
	// PoolTimeout bounds how long a caller waits for a free connection.
	PoolTimeout time.Duration
}

// Cache wraps the Redis client shared by the API and the workers.
type Cache struct {
	client *redis.Client
}

// New parses redisURL, sizes the pool for opts.Workers and checks the
// connection.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = poolSize(opts.Workers)
	opt.MinIdleConns = idleConns
	opt.PoolTimeout = opts.PoolTimeout
	if opt.PoolTimeout <= 0 {
		opt.PoolTimeout = 4 * time.Second
	}
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// poolSize reserves one connection per blocked worker on top of the
// connections used for request traffic.
func poolSize(workers int) int {
	if workers < 0 {
		workers = 0
	}
	return 10 + workers
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client for the job queue.
func (c *Cache) Client() *redis.Client {
	return c.client
}
