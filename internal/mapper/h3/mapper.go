// Package h3mapper tessellates the celestial sphere with H3 cells.
//
// Right ascension plays the role of longitude and declination of latitude;
// the sphere is the same, only the labels differ.
package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

const defaultMaxCells = 200_000

type Mapper struct {
	maxCells int
}

func New() *Mapper { return &Mapper{maxCells: defaultMaxCells} }

// WithMaxCells bounds the size of a single cap coverage.
func (m *Mapper) WithMaxCells(n int) *Mapper {
	cp := *m
	if n > 0 {
		cp.maxCells = n
	}
	return &cp
}

var ErrTooManyCells = errors.New("h3mapper: coverage exceeds cell limit")

// LatLng converts a sky position to an H3 lat/lng in degrees, longitude in
// [-180, 180).
func LatLng(c sky.Coord) h3.LatLng {
	lng := c.RADeg()
	if lng >= 180 {
		lng -= 360
	}
	return h3.LatLng{Lat: c.DecDeg(), Lng: lng}
}

func coordOf(ll h3.LatLng) sky.Coord { return sky.NewCoord(ll.Lng, ll.Lat) }

func (m *Mapper) CellForCoord(c sky.Coord, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	cell, err := h3.LatLngToCell(LatLng(c), res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell for %s: %w", c, err)
	}
	return cell, nil
}

// CellCap returns a cap enclosing the whole cell.
func (m *Mapper) CellCap(cell h3.Cell) (sky.Cap, error) {
	b, err := cell.Boundary()
	if err != nil {
		return sky.Cap{}, fmt.Errorf("boundary: %w", err)
	}
	if len(b) < 3 {
		return sky.Cap{}, fmt.Errorf("degenerate boundary for %s", cell)
	}
	var sum [3]float64
	verts := make([]sky.Coord, 0, len(b))
	for _, ll := range b {
		c := coordOf(ll)
		v := c.Vector()
		sum[0] += v[0]
		sum[1] += v[1]
		sum[2] += v[2]
		verts = append(verts, c)
	}
	center := sky.FromVector(sum)
	var r sky.Angle
	for _, v := range verts {
		if s := center.Separation(v); s > r {
			r = s
		}
	}
	// pad for edge curvature between boundary vertices
	return sky.Cap{Center: center, Radius: r*1.01 + 1e-12}, nil
}

// CellRadius is the enclosing radius of the cell holding c at res.
func (m *Mapper) CellRadius(c sky.Coord, res int) (sky.Angle, error) {
	cell, err := m.CellForCoord(c, res)
	if err != nil {
		return 0, err
	}
	cp, err := m.CellCap(cell)
	if err != nil {
		return 0, err
	}
	return cp.Radius, nil
}

// capArea is the area of a cap of radius r on the unit sphere over 2π.
func capArea(r sky.Angle) float64 {
	return 1 - math.Cos(min(r.Radians(), math.Pi))
}

// CellsForCap returns every cell at res that may intersect the cap, sorted
// and unique. The walk starts at the cell holding the cap centre and only
// expands through cells whose enclosing cap overlaps the query, so the
// result is a superset of the exact coverage.
func (m *Mapper) CellsForCap(q sky.Cap, res int) ([]h3.Cell, error) {
	if q.Radius < 0 || math.IsNaN(float64(q.Radius)) {
		return nil, fmt.Errorf("invalid cap radius %s", q.Radius)
	}
	start, err := m.CellForCoord(q.Center, res)
	if err != nil {
		return nil, err
	}
	startCap, err := m.CellCap(start)
	if err != nil {
		return nil, err
	}
	// each cell is smaller than its enclosing cap, so this undercounts
	if n := capArea(q.Radius) / capArea(startCap.Radius); n > 2*float64(m.maxCells) {
		return nil, fmt.Errorf("%w: res=%d radius=%s (~%.0f cells)", ErrTooManyCells, res, q.Radius, n)
	}

	seen := map[h3.Cell]struct{}{start: {}}
	queue := []h3.Cell{start}
	var out []h3.Cell
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if c != start {
			cp, err := m.CellCap(c)
			if err != nil {
				return nil, err
			}
			if !cp.Intersects(q) {
				continue
			}
		}
		out = append(out, c)
		if len(out) > m.maxCells {
			return nil, fmt.Errorf("%w: res=%d radius=%s", ErrTooManyCells, res, q.Radius)
		}

		ring, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, n := range ring {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
