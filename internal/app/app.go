// Package app assembles the loader stack of one data release from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/h3-refcat/internal/cache/blockcache"
	"github.com/mohammed-shakir/h3-refcat/internal/cache/redisstore"
	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
	"github.com/mohammed-shakir/h3-refcat/internal/core/config"
	"github.com/mohammed-shakir/h3-refcat/internal/index"
	"github.com/mohammed-shakir/h3-refcat/internal/loader"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

type App struct {
	Release  *config.Release
	Registry *index.Registry
	Loader   *loader.Loader
	Cache    *blockcache.Cache

	redis *redisstore.Client
}

// New reads the release manifest named by cfg and builds the registry,
// the block cache and the loader.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	rel, err := config.LoadRelease(cfg.ReleaseManifest)
	if err != nil {
		return nil, err
	}
	return FromRelease(ctx, cfg, rel, logger)
}

func FromRelease(ctx context.Context, cfg config.Config, rel *config.Release, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Release: rel}

	// an unreachable redis leaves the cache process-local
	var remote blockcache.Remote
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("block cache redis unavailable", "addr", cfg.RedisAddr, "err", err)
		} else {
			a.redis = rc
			remote = rc
		}
	}
	cache, err := blockcache.New(blockcache.Config{
		Size:      cfg.BlockCacheSize,
		TTL:       cfg.CacheTTL,
		OpTimeout: cfg.CacheOpTimeout,
	}, remote, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = cache

	srcs := make([]index.Source, 0, len(rel.Indices))
	for _, ix := range rel.Indices {
		opts := []index.FileOption{
			index.WithRelease(rel.Name),
			index.WithColumns(rel.Columns),
			index.WithFileOptions(starindex.WithCache(cache)),
		}
		if ix.Footprint != nil {
			opts = append(opts, index.WithFootprint(ix.Footprint.Cap()))
		}
		srcs = append(srcs, index.NewFileSource(ix.ID, ix.Path, opts...))
	}
	reg, err := index.NewRegistry(rel.Name, logger, srcs...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Registry = reg

	mapper, err := colmap.New(rel.Mapping(cfg.FilterMap))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("release %s: %w", rel.Name, err)
	}
	defaultFilter := cfg.DefaultFilter
	if defaultFilter == "" {
		defaultFilter = rel.DefaultFilter
	}
	l, err := loader.New(reg, mapper, loader.Config{
		Columns:       rel.Columns,
		PixelMargin:   cfg.PixelMargin,
		DefaultFilter: defaultFilter,
	}, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Loader = l

	logger.Info("release ready",
		"release", rel.Name, "indices", len(srcs),
		"filters", mapper.Filters(), "default_filter", defaultFilter,
		"redis", a.redis != nil)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
