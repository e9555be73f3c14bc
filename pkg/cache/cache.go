// Package cache provides a JSON-valued cache client backed by Redis, with an
// in-memory fallback that engages once the backend has shown itself
// unreliable, so a down Redis degrades the pipeline instead of failing it.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config configures the Redis connection used by Client.
type Config struct {
	URL string
}

// Client is a JSON get/set cache with an automatic in-memory fallback.
type Client struct {
	log   *zap.Logger
	rdb   *redis.Client
	mu    sync.Mutex
	local map[string]json.RawMessage

	unavailable bool
}

// New builds a Client from cfg. Connection is lazy: the first operation
// after construction determines reachability.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Client{
		log:   log,
		rdb:   redis.NewClient(opts),
		local: make(map[string]json.RawMessage),
	}, nil
}

// GetJSON fetches key and unmarshals it into v. It reports (false, nil) on a
// cache miss and never returns an error for backend unavailability.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	c.mu.Lock()
	unavailable := c.unavailable
	c.mu.Unlock()

	if unavailable {
		return c.getLocal(key, v)
	}

	payload, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.markUnavailable(err)
		return c.getLocal(key, v)
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under key with the given TTL. It never
// returns an error for backend unavailability; it stores to the in-memory
// fallback instead.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	unavailable := c.unavailable
	c.mu.Unlock()

	if unavailable {
		c.setLocal(key, raw)
		return nil
	}

	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.markUnavailable(err)
		c.setLocal(key, raw)
	}
	return nil
}

func (c *Client) getLocal(key string, v any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.local[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) setLocal(key string, raw json.RawMessage) {
	c.mu.Lock()
	c.local[key] = raw
	c.mu.Unlock()
}

func (c *Client) markUnavailable(err error) {
	c.mu.Lock()
	c.unavailable = true
	c.mu.Unlock()
	if c.log != nil {
		c.log.Warn("cache backend unavailable, falling back to memory", zap.Error(err))
	}
}
