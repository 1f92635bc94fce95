package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/remember_sale.lua
var rememberSaleScript string

type Client struct {
	rdb            *redis.Client
	releaseScript  *redis.Script
	rememberScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		releaseScript:  redis.NewScript(releaseLockScript),
		rememberScript: redis.NewScript(rememberSaleScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func saleKey(orderRef string) string {
	return fmt.Sprintf("idempotency:sale:%s", orderRef)
}

// RememberSale maps an order ref to its sale id. The first id stored wins
// and is returned.
func (c *Client) RememberSale(ctx context.Context, orderRef string, saleID int64, ttl time.Duration) (int64, error) {
	result, err := c.rememberScript.Run(ctx, c.rdb, []string{saleKey(orderRef)}, saleID, int(ttl.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("remember sale script failed: %w", err)
	}

	s, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return strconv.ParseInt(s, 10, 64)
}

// LookupSale returns the sale id recorded for an order ref, if any
func (c *Client) LookupSale(ctx context.Context, orderRef string) (int64, bool, error) {
	id, err := c.rdb.Get(ctx, saleKey(orderRef)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// AcquireLock acquires a distributed lock owned by token
func (c *Client) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}
