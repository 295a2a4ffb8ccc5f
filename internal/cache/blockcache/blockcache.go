// Package blockcache keeps decoded star-index blocks in a two-level cache:
// an in-process LRU in front of an optional shared Redis.
package blockcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
)

// Remote is the shared second level, satisfied by *redisstore.Client.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
}

type Config struct {
	// Size is the number of blocks kept in process.
	Size int
	// TTL applies to entries written to the remote level.
	TTL time.Duration
	// OpTimeout bounds each remote call.
	OpTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 1024
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 250 * time.Millisecond
	}
	return c
}

// Cache implements starindex.BlockCache. Remote failures degrade to misses.
type Cache struct {
	cfg    Config
	l1     *lru.Cache[string, []byte]
	l2     Remote
	logger *slog.Logger
}

// New builds a cache; l2 may be nil.
func New(cfg Config, l2 Remote, logger *slog.Logger) (*Cache, error) {
	cfg = cfg.withDefaults()
	l1, err := lru.New[string, []byte](cfg.Size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{cfg: cfg, l1: l1, l2: l2, logger: logger}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.l1.Get(key); ok {
		observability.ObserveBlockCache("l1", "hit")
		return v, true
	}
	observability.ObserveBlockCache("l1", "miss")
	if c.l2 == nil {
		return nil, false
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	v, ok, err := c.l2.Get(rctx, key)
	switch {
	case err != nil:
		observability.ObserveBlockCache("l2", "error")
		c.logger.DebugContext(ctx, "block cache remote get failed", "key", key, "err", err)
		return nil, false
	case !ok:
		observability.ObserveBlockCache("l2", "miss")
		return nil, false
	}
	observability.ObserveBlockCache("l2", "hit")
	c.l1.Add(key, v)
	return v, true
}

// Prefetch pulls the remote copies of keys missing in process with one
// round trip, so the Gets of a query that follow hit the first level.
func (c *Cache) Prefetch(ctx context.Context, keys []string) {
	if c.l2 == nil {
		return
	}
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if !c.l1.Contains(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) < 2 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	got, err := c.l2.GetMany(rctx, missing)
	if err != nil {
		observability.ObserveBlockCache("l2", "error")
		c.logger.DebugContext(ctx, "block cache remote prefetch failed", "keys", len(missing), "err", err)
		return
	}
	for k, v := range got {
		c.l1.Add(k, v)
	}
	c.logger.DebugContext(ctx, "block cache prefetch", "wanted", len(missing), "found", len(got))
}

func (c *Cache) Put(ctx context.Context, key string, raw []byte) {
	c.l1.Add(key, raw)
	if c.l2 == nil {
		return
	}
	// a cancelled caller should not stop the write-through
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OpTimeout)
	defer cancel()
	if err := c.l2.Set(rctx, key, raw, c.cfg.TTL); err != nil {
		level := slog.LevelDebug
		if !errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "block cache remote set failed", "key", key, "err", err)
	}
}

// Remove drops key from the in-process level only.
func (c *Cache) Remove(key string) { c.l1.Remove(key) }

func (c *Cache) Len() int { return c.l1.Len() }

func (c *Cache) Purge() { c.l1.Purge() }
