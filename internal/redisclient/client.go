package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/incr_window.lua
var incrWindowScript string

type Client struct {
	rdb        *redis.Client
	incrScript *redis.Script
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

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:        rdb,
		incrScript: redis.NewScript(incrWindowScript),
	}
}

// Ping checks the connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cooldownKey(phone string) string {
	return fmt.Sprintf("otp:cooldown:%s", phone)
}

func attemptsKey(phone string) string {
	return fmt.Sprintf("otp:attempts:%s", phone)
}

// AcquireCooldown claims the resend cooldown for phone. It returns false
// while a previous claim is still live.
func (c *Client) AcquireCooldown(ctx context.Context, phone string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, cooldownKey(phone), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("otp cooldown failed: %w", err)
	}
	return ok, nil
}

// ReleaseCooldown drops the cooldown so phone may request again at once
func (c *Client) ReleaseCooldown(ctx context.Context, phone string) error {
	return c.rdb.Del(ctx, cooldownKey(phone)).Err()
}

// IncrementAttempts counts a failed verification for phone within window
// and returns the running total.
func (c *Client) IncrementAttempts(ctx context.Context, phone string, window time.Duration) (int, error) {
	result, err := c.incrScript.Run(ctx, c.rdb, []string{attemptsKey(phone)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("attempt counter script failed: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return int(count), nil
}

// Attempts returns the failed verifications recorded for phone
func (c *Client) Attempts(ctx context.Context, phone string) (int, error) {
	n, err := c.rdb.Get(ctx, attemptsKey(phone)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// ResetAttempts clears the failure counter after a successful login
func (c *Client) ResetAttempts(ctx context.Context, phone string) error {
	return c.rdb.Del(ctx, attemptsKey(phone)).Err()
}
