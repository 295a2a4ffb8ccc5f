// Package index selects the star indices of a data release that cover a
// sky region and merges their rows.
package index

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

// Source is one queryable star index.
type Source interface {
	ID() string
	// Footprint reports a cap holding every row; ok=false when unknown.
	Footprint() (c sky.Cap, ok bool)
	Query(ctx context.Context, center sky.Coord, radius sky.Angle) iter.Seq2[starindex.Row, error]
}

// FileSource is a Source backed by an index file, opened on first use. A
// failed open is retried on the next query.
type FileSource struct {
	id       string
	path     string
	release  string
	columns  []string
	fileOpts []starindex.Option

	footprint    sky.Cap
	hasFootprint bool

	mu sync.Mutex
	f  *starindex.File
}

type FileOption func(*FileSource)

// WithFootprint declares the footprint up front, so the file need not be
// opened to decide whether it is relevant.
func WithFootprint(c sky.Cap) FileOption {
	return func(s *FileSource) {
		s.footprint = c
		s.hasFootprint = true
	}
}

// WithRelease requires the file to belong to the named release.
func WithRelease(name string) FileOption {
	return func(s *FileSource) { s.release = name }
}

// WithColumns requires the file to carry every named column.
func WithColumns(cols []string) FileOption {
	return func(s *FileSource) { s.columns = append([]string(nil), cols...) }
}

func WithFileOptions(opts ...starindex.Option) FileOption {
	return func(s *FileSource) { s.fileOpts = append(s.fileOpts, opts...) }
}

func NewFileSource(id, path string, opts ...FileOption) *FileSource {
	s := &FileSource{id: id, path: path}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileSource) ID() string   { return s.id }
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Footprint() (sky.Cap, bool) {
	if s.hasFootprint {
		return s.footprint, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return s.f.Footprint(), true
	}
	return sky.Cap{}, false
}

func (s *FileSource) open() (*starindex.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return s.f, nil
	}
	f, err := starindex.Open(s.path, s.fileOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.validate(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	s.f = f
	return f, nil
}

// Open opens and validates the file ahead of the first query.
func (s *FileSource) Open() error {
	_, err := s.open()
	return err
}

func (s *FileSource) validate(f *starindex.File) error {
	if f.ID() != s.id {
		return fmt.Errorf("%w: %s holds index %q, want %q", starindex.ErrCorrupt, s.path, f.ID(), s.id)
	}
	if s.release != "" && f.Release() != s.release {
		return fmt.Errorf("%w: %s belongs to release %q, want %q", starindex.ErrCorrupt, s.path, f.Release(), s.release)
	}
	if missing := f.Columns().Missing(s.columns); len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks columns %v", starindex.ErrCorrupt, s.path, missing)
	}
	return nil
}

func (s *FileSource) Query(ctx context.Context, center sky.Coord, radius sky.Angle) iter.Seq2[starindex.Row, error] {
	return func(yield func(starindex.Row, error) bool) {
		f, err := s.open()
		if err != nil {
			yield(starindex.Row{}, err)
			return
		}
		for r, err := range f.Query(ctx, center, radius) {
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
