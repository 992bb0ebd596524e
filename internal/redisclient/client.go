package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	//go:embed scripts/rate_limit.lua
	rateLimitScript string
	//go:embed scripts/release_lock.lua
	releaseLockScript string
)

// Client wraps go-redis with the rate limiter, webhook replay claims and
// token-owned locks.
type Client struct {
	rdb               *redis.Client
	rateLimitScript   *redis.Script
	releaseLockScript *redis.Script

	// lock key -> token this process wrote
	tokens   sync.Map
	newToken func() string
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientWithRedis(rdb), nil
}

// NewClientWithRedis wraps an existing go-redis client
func NewClientWithRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:               rdb,
		rateLimitScript:   redis.NewScript(rateLimitScript),
		releaseLockScript: redis.NewScript(releaseLockScript),
		newToken:          func() string { return uuid.New().String() },
	}
}

// Ping checks Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Allow counts a hit against key and reports whether it stays within limit
// for the current window
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := c.rateLimitScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)}, window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return count <= int64(limit), nil
}

// ClaimWebhookEvent marks a provider event as in flight for ttl. It returns
// false while another delivery holds the claim.
func (c *Client) ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("webhook:%s", eventID), "1", ttl).Result()
}

// ReleaseWebhookEvent drops a claim so the provider's retry is processed again
func (c *Client) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("webhook:%s", eventID)).Err()
}

// AcquireLock takes lockKey for ttl. It returns false while another holder
// owns it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	token := c.newToken()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		c.tokens.Store(lockKey, token)
	}
	return ok, nil
}

// ReleaseLock frees a lock taken by this client. A lock that expired and was
// taken by someone else is left alone.
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	token, ok := c.tokens.LoadAndDelete(lockKey)
	if !ok {
		return nil
	}
	return c.releaseLockScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
