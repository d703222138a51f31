// Package cache is the fail-safe Redis wrapper for read-side caching, most
// notably terminal API key lookups. A Redis outage degrades every call to a
// cache miss. Nothing correctness-critical may sit behind this client; the
// challenge store talks to Redis directly and fails closed instead.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a redis.Client and swallows connectivity errors.
type Client struct {
	client *redis.Client
}

// New connects a fail-safe client to the given Redis instance.
func New(addr, password string, db int) *Client {
	return &Client{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient wraps an already-connected Redis client, letting the server
// share one connection pool between this wrapper and the challenge store.
func NewWithClient(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) disabled() bool {
	return c == nil || c.client == nil
}

// Get returns the cached value, or nil on a miss or Redis outage.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.disabled() {
		return nil, nil
	}
	res, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil and outages both read as a miss.
		return nil, nil
	}
	return res, nil
}

// Set stores a value with a TTL; Redis errors are dropped.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.disabled() {
		return nil
	}
	c.client.Set(ctx, key, value, ttl)
	return nil
}

// Delete removes a key; Redis errors are dropped.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.disabled() {
		return nil
	}
	c.client.Del(ctx, key)
	return nil
}
