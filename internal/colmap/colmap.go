// Package colmap maps native catalog columns to photometric filters and
// decides the output field names.
package colmap

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrMissingColumn = errors.New("missing column")
)

const (
	FluxSuffix      = "_flux"
	FluxSigmaSuffix = "_fluxSigma"
	CamFluxSuffix   = "_camFlux"
)

type Config struct {
	// Filters lists the catalog filters; empty means the sorted keys of
	// MagColumnMap.
	Filters []string
	// FilterMap maps a camera filter name to a catalog filter.
	FilterMap map[string]string
	// MagColumnMap maps a filter to its native magnitude column. Unmapped
	// filters use a column named like the filter, else "<filter>_mag".
	MagColumnMap map[string]string
	// MagErrorColumnMap maps a filter to its magnitude error column.
	// Filters left out get no flux error field.
	MagErrorColumnMap map[string]string
}

// FilterColumns are the native columns behind one catalog filter.
type FilterColumns struct {
	Filter string
	Mag    string
	// MagErr is empty when the filter has no error column.
	MagErr string
}

func (f FilterColumns) FluxField() string { return f.Filter + FluxSuffix }

func (f FilterColumns) FluxSigmaField() string {
	if f.MagErr == "" {
		return ""
	}
	return f.Filter + FluxSigmaSuffix
}

type Mapper struct {
	cfg     Config
	filters []string
}

func New(cfg Config) (*Mapper, error) {
	filters := slices.Clone(cfg.Filters)
	if len(filters) == 0 {
		filters = slices.Sorted(maps.Keys(cfg.MagColumnMap))
	}
	if len(filters) == 0 {
		return nil, errors.New("no filters configured")
	}
	seen := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		if f == "" {
			return nil, errors.New("empty filter name")
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("duplicate filter %q", f)
		}
		seen[f] = struct{}{}
	}
	for f := range cfg.MagErrorColumnMap {
		if _, ok := seen[f]; !ok {
			return nil, fmt.Errorf("error column for unconfigured filter %q", f)
		}
	}
	return &Mapper{cfg: cfg, filters: filters}, nil
}

func (m *Mapper) Filters() []string { return slices.Clone(m.filters) }

// Aliases returns "<camera>_camFlux" -> "<filter>_flux" for every filter
// map entry whose target is a configured filter, in name order.
func (m *Mapper) Aliases() [][2]string {
	var out [][2]string
	for _, cam := range slices.Sorted(maps.Keys(m.cfg.FilterMap)) {
		target := m.cfg.FilterMap[cam]
		if slices.Contains(m.filters, target) {
			out = append(out, [2]string{cam + CamFluxSuffix, target + FluxSuffix})
		}
	}
	return out
}

// Plan is the column resolution for one load.
type Plan struct {
	Requested string
	// Key is the catalog filter the request resolved to.
	Key     string
	Aliased bool
	// FluxField names the field holding the requested filter's flux.
	FluxField string
	Filters   []FilterColumns
}

// Plan resolves requested against the release columns. Every configured
// filter is resolved, not just the requested one. Any FilterMap entry for
// requested makes the flux field "<requested>_camFlux", identity entries
// such as r=r included.
func (m *Mapper) Plan(requested string, columns []string) (Plan, error) {
	if requested == "" {
		return Plan{}, fmt.Errorf("%w: empty filter name", ErrUnknownFilter)
	}
	key, aliased := m.cfg.FilterMap[requested]
	if !aliased {
		key = requested
	}
	if !slices.Contains(m.filters, key) {
		if aliased {
			return Plan{}, fmt.Errorf("%w: %q maps to %q, which is not a configured filter", ErrUnknownFilter, requested, key)
		}
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownFilter, requested)
	}

	if _, err := m.resolve(key, columns); err != nil {
		return Plan{}, fmt.Errorf("%w: %q: %w", ErrUnknownFilter, requested, err)
	}

	p := Plan{Requested: requested, Key: key, Aliased: aliased}
	for _, f := range m.filters {
		fc, err := m.resolve(f, columns)
		if err != nil {
			return Plan{}, err
		}
		p.Filters = append(p.Filters, fc)
	}
	if aliased {
		p.FluxField = requested + CamFluxSuffix
	} else {
		p.FluxField = requested + FluxSuffix
	}
	return p, nil
}

func (m *Mapper) resolve(filter string, columns []string) (FilterColumns, error) {
	fc := FilterColumns{Filter: filter}
	if col, ok := m.cfg.MagColumnMap[filter]; ok {
		if !slices.Contains(columns, col) {
			return fc, fmt.Errorf("%w: magnitude column %q for filter %q", ErrMissingColumn, col, filter)
		}
		fc.Mag = col
	} else {
		switch {
		case slices.Contains(columns, filter):
			fc.Mag = filter
		case slices.Contains(columns, filter+"_mag"):
			fc.Mag = filter + "_mag"
		default:
			return fc, fmt.Errorf("%w: no magnitude column for filter %q", ErrMissingColumn, filter)
		}
	}
	if col, ok := m.cfg.MagErrorColumnMap[filter]; ok {
		if !slices.Contains(columns, col) {
			return fc, fmt.Errorf("%w: magnitude error column %q for filter %q", ErrMissingColumn, col, filter)
		}
		fc.MagErr = col
	}
	return fc, nil
}

// Binding is a Plan resolved to the column positions of one index file.
type Binding struct {
	mag []int
	err []int // -1 when absent
}

func (p Plan) Bind(cols *starindex.Columns) (Binding, error) {
	b := Binding{mag: make([]int, len(p.Filters)), err: make([]int, len(p.Filters))}
	for i, f := range p.Filters {
		idx, ok := cols.Index(f.Mag)
		if !ok {
			return Binding{}, fmt.Errorf("%w: %q", ErrMissingColumn, f.Mag)
		}
		b.mag[i] = idx
		b.err[i] = -1
		if f.MagErr != "" {
			idx, ok := cols.Index(f.MagErr)
			if !ok {
				return Binding{}, fmt.Errorf("%w: %q", ErrMissingColumn, f.MagErr)
			}
			b.err[i] = idx
		}
	}
	return b, nil
}

// Photometry returns flux and flux error of filter i for a row. sigma is
// NaN when the filter has no error column; missing magnitudes give NaN.
func (b Binding) Photometry(i int, values []float64) (flux, sigma float64) {
	flux = FluxFromMag(values[b.mag[i]])
	sigma = nan
	if b.err[i] >= 0 {
		sigma = FluxSigmaFromMagErr(flux, values[b.err[i]])
	}
	return flux, sigma
}
