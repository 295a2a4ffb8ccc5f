// Package redisstore keeps decoded index blocks in Redis, shared by every
// process serving the same release.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
)

// scanBatch is the COUNT hint of DelPrefix scans.
const scanBatch = 512

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// WithIOTimeout sets both the read and the write timeout.
func WithIOTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		o.ReadTimeout = d
		o.WriteTimeout = d
	}
}

type Client struct {
	rdb *redis.Client
}

// New connects to addr and pings it once.
func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, o := range opts {
		o(ro)
	}

	c := &Client{rdb: redis.NewClient(ro)}
	if err := c.observe("ping", time.Now(), c.rdb.Ping(ctx).Err()); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return c, nil
}

func (c *Client) observe(op string, start time.Time, err error) error {
	observability.ObserveCacheOp(op, err, time.Since(start).Seconds())
	return err
}

// Get returns the block at key; ok is false when it is not cached.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = c.observe("get", start, nil)
		return nil, false, nil
	}
	if err := c.observe("get", start, err); err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return v, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	err := c.observe("set", time.Now(), c.rdb.Set(ctx, key, val, ttl).Err())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// GetMany fetches keys with one MGET. Keys that are not cached are absent
// from the result.
func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	start := time.Now()
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err := c.observe("mget", start, err); err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}
	for i, v := range vals {
		switch b := v.(type) {
		case string:
			out[keys[i]] = []byte(b)
		case []byte:
			out[keys[i]] = b
		}
	}
	return out, nil
}

// SetMany writes every entry of kv in one pipeline.
func (c *Client) SetMany(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	if len(kv) == 0 {
		return nil
	}
	start := time.Now()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range kv {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	if err := c.observe("mset", start, err); err != nil {
		return fmt.Errorf("redis pipelined SET of %d keys: %w", len(kv), err)
	}
	return nil
}

// DelPrefix deletes every key starting with prefix and returns how many
// were removed. Matches are collected with SCAN before anything is
// deleted, so keys written concurrently may survive.
func (c *Client) DelPrefix(ctx context.Context, prefix string) (int, error) {
	start := time.Now()
	seen := make(map[string]struct{})
	var matched []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		matched = append(matched, k)
	}
	if err := iter.Err(); err != nil {
		return 0, c.observe("del_prefix", start, fmt.Errorf("redis SCAN %q: %w", prefix, err))
	}

	removed := 0
	for batch := range slices.Chunk(matched, scanBatch) {
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return removed, c.observe("del_prefix", start, fmt.Errorf("redis DEL %d keys: %w", len(batch), err))
		}
		removed += int(n)
	}
	return removed, c.observe("del_prefix", start, nil)
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
