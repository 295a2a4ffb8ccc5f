package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/h3-refcat/internal/core/observability"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

const maxParallelSources = 4

// SourceError reports a failed index together with the region queried.
type SourceError struct {
	Index  string
	Region sky.Cap
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("index %s, region %s: %v", e.Index, e.Region, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Reason is a short label for the failure class.
func (e *SourceError) Reason() string {
	switch {
	case errors.Is(e.Err, starindex.ErrUnavailable):
		return "unavailable"
	case errors.Is(e.Err, starindex.ErrCorrupt):
		return "corrupt"
	case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

type Stats struct {
	Selected   int
	Failed     int
	Scanned    int
	Duplicates int
	// Errors holds one *SourceError per failed index.
	Errors []error
}

// Registry holds the indices of one data release, in a fixed order.
type Registry struct {
	release string
	sources []Source
	logger  *slog.Logger
}

func NewRegistry(release string, logger *slog.Logger, sources ...Source) (*Registry, error) {
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if s == nil {
			return nil, errors.New("nil index source")
		}
		if _, dup := seen[s.ID()]; dup {
			return nil, fmt.Errorf("duplicate index id %q", s.ID())
		}
		seen[s.ID()] = struct{}{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{release: release, sources: append([]Source(nil), sources...), logger: logger}, nil
}

func (r *Registry) Release() string { return r.release }

func (r *Registry) Sources() []Source { return append([]Source(nil), r.sources...) }

// Select returns, in registry order, every source whose footprint may
// intersect the circle. Sources without a known footprint are always kept.
func (r *Registry) Select(center sky.Coord, radius sky.Angle) []Source {
	q := sky.Cap{Center: center, Radius: radius}
	var out []Source
	for _, s := range r.sources {
		fp, ok := s.Footprint()
		if ok && !fp.Intersects(q) {
			continue
		}
		out = append(out, s)
	}
	return out
}

type sourceResult struct {
	rows []starindex.Row
	err  error
}

// LoadAll queries every selected source and returns their rows, first
// occurrence of each catalog id wins, in registry order. A failing source
// contributes nothing and is reported in Stats.Errors; the call fails only
// when every selected source failed or ctx ended.
func (r *Registry) LoadAll(ctx context.Context, center sky.Coord, radius sky.Angle) ([]starindex.Row, Stats, error) {
	selected := r.Select(center, radius)
	stats := Stats{Selected: len(selected)}
	if len(selected) == 0 {
		return nil, stats, nil
	}
	region := sky.Cap{Center: center, Radius: radius}

	results := make([]sourceResult, len(selected))
	sem := make(chan struct{}, maxParallelSources)
	var wg sync.WaitGroup
	for i, s := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = drain(ctx, s, center, radius)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	seen := make(map[uint64]struct{})
	var rows []starindex.Row
	for i, res := range results {
		id := selected[i].ID()
		if res.err != nil {
			se := &SourceError{Index: id, Region: region, Err: res.err}
			stats.Failed++
			stats.Errors = append(stats.Errors, se)
			observability.IncIndexFailure(id, se.Reason())
			r.logger.WarnContext(ctx, "index excluded from load",
				"index", id, "reason", se.Reason(), "err", res.err)
			continue
		}
		stats.Scanned += len(res.rows)
		observability.AddRowsScanned(id, len(res.rows))
		for _, row := range res.rows {
			if _, dup := seen[row.ID]; dup {
				stats.Duplicates++
				continue
			}
			seen[row.ID] = struct{}{}
			rows = append(rows, row)
		}
	}

	if stats.Failed == len(selected) {
		return nil, stats, fmt.Errorf("all %d candidate indices failed: %w", stats.Failed, errors.Join(stats.Errors...))
	}
	r.logger.DebugContext(ctx, "indices loaded",
		"selected", stats.Selected, "failed", stats.Failed,
		"scanned", stats.Scanned, "duplicates", stats.Duplicates, "rows", len(rows))
	return rows, stats, nil
}

// drain buffers a source's rows so a mid-stream failure drops it whole.
func drain(ctx context.Context, s Source, center sky.Coord, radius sky.Angle) sourceResult {
	var rows []starindex.Row
	for row, err := range s.Query(ctx, center, radius) {
		if err != nil {
			return sourceResult{err: err}
		}
		rows = append(rows, row)
	}
	return sourceResult{rows: rows}
}

// Readiness opens every source that supports it. The registry is ready
// while at least one source is usable; unavailable lists the others.
func (r *Registry) Readiness() (ready bool, unavailable []string) {
	for _, s := range r.sources {
		o, ok := s.(interface{ Open() error })
		if !ok {
			ready = true
			continue
		}
		if err := o.Open(); err != nil {
			r.logger.Warn("star index not ready", "index", s.ID(), "err", err)
			unavailable = append(unavailable, s.ID())
			continue
		}
		ready = true
	}
	return ready, unavailable
}

// Close closes every source that holds resources.
func (r *Registry) Close() error {
	var errs []error
	for _, s := range r.sources {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
