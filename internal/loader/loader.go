// Package loader is the entry point for loading reference catalogs: it
// turns a pixel box or sky circle into index queries, maps the native
// columns and keeps only the rows inside the exact region.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/index"
	"github.com/mohammed-shakir/h3-refcat/internal/logger"
	"github.com/mohammed-shakir/h3-refcat/internal/refcat"
	"github.com/mohammed-shakir/h3-refcat/internal/region"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

const DefaultPixelMargin = 50

type Config struct {
	// Columns are the native columns every index of the release carries.
	Columns []string
	// PixelMargin pads pixel boxes on every side.
	PixelMargin float64
	// DefaultFilter is used when a load names no filter.
	DefaultFilter string
}

type Loader struct {
	reg    *index.Registry
	mapper *colmap.Mapper
	cfg    Config
	logger *slog.Logger
}

func New(reg *index.Registry, mapper *colmap.Mapper, cfg Config, log *slog.Logger) (*Loader, error) {
	if reg == nil || mapper == nil {
		return nil, errors.New("loader needs a registry and a column mapper")
	}
	if cfg.PixelMargin < 0 {
		return nil, fmt.Errorf("negative pixel margin %g", cfg.PixelMargin)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loader{reg: reg, mapper: mapper, cfg: cfg, logger: log}, nil
}

type Result struct {
	RefCat *refcat.Catalog
	// FluxField names the field holding the requested filter's flux.
	FluxField string
	Region    region.Region
	Stats     index.Stats
}

type loadOptions struct {
	wcs wcs.WCS
}

type LoadOption func(*loadOptions)

// WithWCS fills in centroids of sky-circle loads.
func WithWCS(w wcs.WCS) LoadOption { return func(o *loadOptions) { o.wcs = w } }

// LoadPixelBox loads the stars whose pixel position through w lies in bbox
// grown by the configured margin.
func (l *Loader) LoadPixelBox(ctx context.Context, bbox geom.Box, w wcs.WCS, filterName string) (Result, error) {
	start := time.Now()
	res, err := l.loadPixelBox(ctx, bbox, w, filterName)
	l.observe(ctx, "box", res, err, start)
	if err != nil {
		return Result{}, fmt.Errorf("load %s, filter %q: %w", bbox, filterName, err)
	}
	return res, nil
}

func (l *Loader) loadPixelBox(ctx context.Context, bbox geom.Box, w wcs.WCS, filterName string) (Result, error) {
	plan, schema, err := l.plan(filterName)
	if err != nil {
		return Result{}, err
	}
	reg, err := region.ForPixelBox(bbox, w, l.cfg.PixelMargin)
	if err != nil {
		return Result{}, err
	}
	keep := region.NewPixelBoxFilter(bbox, w, l.cfg.PixelMargin)
	return l.load(ctx, reg, plan, schema, func(c sky.Coord) (geom.Point, bool, bool) {
		p, ok := keep.Project(c)
		return p, true, ok
	})
}

// LoadSkyCircle loads the stars within radius of center.
func (l *Loader) LoadSkyCircle(ctx context.Context, center sky.Coord, radius sky.Angle, filterName string, opts ...LoadOption) (Result, error) {
	start := time.Now()
	res, err := l.loadSkyCircle(ctx, center, radius, filterName, opts)
	l.observe(ctx, "circle", res, err, start)
	if err != nil {
		return Result{}, fmt.Errorf("load circle %s r=%s, filter %q: %w", center, radius, filterName, err)
	}
	return res, nil
}

func (l *Loader) loadSkyCircle(ctx context.Context, center sky.Coord, radius sky.Angle, filterName string, opts []LoadOption) (Result, error) {
	var o loadOptions
	for _, f := range opts {
		f(&o)
	}
	plan, schema, err := l.plan(filterName)
	if err != nil {
		return Result{}, err
	}
	reg, err := region.ForSkyCircle(center, radius)
	if err != nil {
		return Result{}, err
	}
	keep := region.NewSkyCircleFilter(reg)
	return l.load(ctx, reg, plan, schema, func(c sky.Coord) (geom.Point, bool, bool) {
		if !keep.Contains(c) {
			return geom.Point{}, false, false
		}
		if o.wcs == nil {
			return geom.Point{}, false, true
		}
		p := o.wcs.SkyToPixel(c)
		return p, p.IsValid(), true
	})
}

func (l *Loader) plan(filterName string) (colmap.Plan, *refcat.Schema, error) {
	if filterName == "" {
		filterName = l.cfg.DefaultFilter
	}
	plan, err := l.mapper.Plan(filterName, l.cfg.Columns)
	if err != nil {
		return colmap.Plan{}, nil, err
	}
	schema, err := refcat.NewSchema(plan.Filters, l.mapper.Aliases())
	if err != nil {
		return colmap.Plan{}, nil, err
	}
	return plan, schema, nil
}

// accept reports the centroid of c, whether it is set, and whether c is
// inside the region.
type accept func(c sky.Coord) (centroid geom.Point, hasCentroid, inside bool)

func (l *Loader) load(ctx context.Context, reg region.Region, plan colmap.Plan, schema *refcat.Schema, keep accept) (Result, error) {
	ctx = logger.WithRegion(ctx, reg.String())
	rows, stats, err := l.reg.LoadAll(ctx, reg.Center, reg.Radius)
	if err != nil {
		return Result{}, err
	}

	bindings := make(map[*starindex.Columns]colmap.Binding)
	b := refcat.NewBuilder(schema)
	n := len(plan.Filters)
	for _, row := range rows {
		centroid, hasCentroid, inside := keep(row.Coord)
		if !inside {
			continue
		}
		bind, ok := bindings[row.Columns()]
		if !ok {
			bind, err = plan.Bind(row.Columns())
			if err != nil {
				return Result{}, fmt.Errorf("index %s: %w", row.Index, err)
			}
			bindings[row.Columns()] = bind
		}
		rec := refcat.Record{
			ID:          row.ID,
			Coord:       row.Coord,
			Centroid:    centroid,
			HasCentroid: hasCentroid,
			Resolved:    row.Flags.Resolved(),
			Variable:    row.Flags.Variable(),
			Flux:        make([]float64, n),
			FluxSigma:   make([]float64, n),
		}
		for i := range n {
			rec.Flux[i], rec.FluxSigma[i] = bind.Photometry(i, row.Values)
		}
		if err := b.Append(rec); err != nil {
			return Result{}, err
		}
	}

	l.logger.DebugContext(ctx, "reference catalog loaded",
		"filter", plan.Requested, "flux_field", plan.FluxField,
		"candidates", len(rows), "records", b.Len(),
		"indices", stats.Selected, "failed", stats.Failed)
	return Result{RefCat: b.Build(), FluxField: plan.FluxField, Region: reg, Stats: stats}, nil
}

func (l *Loader) observe(ctx context.Context, kind string, res Result, err error, start time.Time) {
	outcome := "ok"
	n := 0
	switch {
	case err == nil:
		n = res.RefCat.Len()
	case errors.Is(err, region.ErrInvalidRegion), errors.Is(err, colmap.ErrUnknownFilter):
		outcome = "invalid"
	default:
		outcome = "error"
		l.logger.WarnContext(ctx, "reference catalog load failed", "kind", kind, "err", err)
	}
	observability.ObserveLoad(kind, outcome, n, time.Since(start).Seconds())
}
