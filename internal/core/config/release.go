package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

// Release is the TOML manifest describing one reference catalog release:
// its native columns, the filter mapping and the index files.
type Release struct {
	Name              string            `toml:"release"`
	Columns           []string          `toml:"columns"`
	Filters           []string          `toml:"filters"`
	DefaultFilter     string            `toml:"default_filter"`
	FilterMap         map[string]string `toml:"filter_map"`
	MagColumnMap      map[string]string `toml:"mag_column_map"`
	MagErrorColumnMap map[string]string `toml:"mag_error_column_map"`
	Indices           []IndexEntry      `toml:"index"`
}

type IndexEntry struct {
	ID string `toml:"id"`
	// Path is resolved against the manifest's directory when relative.
	Path      string     `toml:"path"`
	Footprint *Footprint `toml:"footprint"`
}

// Footprint is a sky cap in degrees.
type Footprint struct {
	RA     float64 `toml:"ra"`
	Dec    float64 `toml:"dec"`
	Radius float64 `toml:"radius"`
}

func (f Footprint) Cap() sky.Cap {
	return sky.Cap{Center: sky.NewCoord(f.RA, f.Dec), Radius: sky.Degrees(f.Radius)}
}

func LoadRelease(path string) (*Release, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read release manifest: %w", err)
	}
	return ParseRelease(data, filepath.Dir(path))
}

// ParseRelease decodes a manifest; relative index paths are joined to dir.
func ParseRelease(data []byte, dir string) (*Release, error) {
	var r Release
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode release manifest: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	for i := range r.Indices {
		p := r.Indices[i].Path
		if !filepath.IsAbs(p) {
			r.Indices[i].Path = filepath.Join(dir, p)
		}
	}
	return &r, nil
}

func (r *Release) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("release manifest: missing release name")
	}
	if len(r.Columns) == 0 {
		return errors.New("release manifest: no columns")
	}
	if len(r.Indices) == 0 {
		return errors.New("release manifest: no [[index]] entries")
	}
	seen := make(map[string]struct{}, len(r.Indices))
	for i, ix := range r.Indices {
		if ix.ID == "" || ix.Path == "" {
			return fmt.Errorf("release manifest: index %d needs id and path", i)
		}
		if _, dup := seen[ix.ID]; dup {
			return fmt.Errorf("release manifest: duplicate index id %q", ix.ID)
		}
		seen[ix.ID] = struct{}{}
		if fp := ix.Footprint; fp != nil {
			if fp.Dec < -90 || fp.Dec > 90 || fp.Radius < 0 || fp.Radius > 180 ||
				math.IsNaN(fp.RA) || math.IsNaN(fp.Dec) || math.IsNaN(fp.Radius) {
				return fmt.Errorf("release manifest: index %q has an invalid footprint", ix.ID)
			}
		}
	}
	return nil
}

// Mapping returns the column mapping of the release. Entries of override
// replace filter_map entries of the manifest.
func (r *Release) Mapping(override map[string]string) colmap.Config {
	fm := maps.Clone(r.FilterMap)
	if fm == nil {
		fm = make(map[string]string, len(override))
	}
	maps.Copy(fm, override)
	return colmap.Config{
		Filters:           r.Filters,
		FilterMap:         fm,
		MagColumnMap:      r.MagColumnMap,
		MagErrorColumnMap: r.MagErrorColumnMap,
	}
}
