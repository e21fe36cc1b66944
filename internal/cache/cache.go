// Package cache provides a Redis client wrapper used to memoise progress
// counts. The service runs without it when no URL is configured.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibpractice/backend/internal/models"
)

// DefaultTTL bounds how long counts survive if an invalidation is missed.
const DefaultTTL = 10 * time.Minute

// Cache wraps a Redis client.
type Cache struct {
	Client *redis.Client
	ttl    time.Duration
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	return opts, nil
}

// New creates a new cache client and pings it.
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client. A non-positive ttl means DefaultTTL.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{Client: client, ttl: ttl}
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// ── Progress counts ─────────────────────────────────────

// ProgressKey is the hash holding one user's counts for a subject.
func ProgressKey(subject string, userID int64) string {
	return "progress:" + subject + ":" + strconv.FormatInt(userID, 10)
}

// GetCounts returns the cached counts. ok is false on a miss.
func (c *Cache) GetCounts(ctx context.Context, subject string, userID int64) (models.ProgressCounts, bool, error) {
	vals, err := c.Client.HGetAll(ctx, ProgressKey(subject, userID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(vals) == 0) {
		return models.ProgressCounts{}, false, nil
	}
	if err != nil {
		return models.ProgressCounts{}, false, fmt.Errorf("get cached counts: %w", err)
	}

	reviewed, err1 := strconv.Atoi(vals["reviewed"])
	total, err2 := strconv.Atoi(vals["total"])
	if err1 != nil || err2 != nil {
		return models.ProgressCounts{}, false, nil
	}
	return models.ProgressCounts{Reviewed: reviewed, Total: total}, true, nil
}

func (c *Cache) SetCounts(ctx context.Context, subject string, userID int64, counts models.ProgressCounts) error {
	key := ProgressKey(subject, userID)
	pipe := c.Client.TxPipeline()
	pipe.HSet(ctx, key, "reviewed", counts.Reviewed, "total", counts.Total)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set cached counts: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, subject string, userID int64) error {
	if err := c.Client.Del(ctx, ProgressKey(subject, userID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached counts: %w", err)
	}
	return nil
}
