// Package starindextest generates deterministic star fields and writes them
// as index files for tests.
package starindextest

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

// Bands are the photometric bands of the synthetic catalog.
var Bands = []string{"u", "g", "r", "i", "z"}

// Columns returns the native columns: one magnitude per band, then one
// magnitude error per band ("<band>_err").
func Columns() []string {
	cols := make([]string, 0, 2*len(Bands))
	cols = append(cols, Bands...)
	for _, b := range Bands {
		cols = append(cols, b+"_err")
	}
	return cols
}

// Offset returns the point at angular distance d (radians) along bearing b
// (radians east of north) from c.
func Offset(c sky.Coord, d, b float64) sky.Coord {
	dec0 := c.Dec().Radians()
	ra0 := c.RA().Radians()
	sd, cd := math.Sincos(d)
	sdec0, cdec0 := math.Sincos(dec0)
	dec := math.Asin(sdec0*cd + cdec0*sd*math.Cos(b))
	ra := ra0 + math.Atan2(math.Sin(b)*sd*cdec0, cd-sdec0*math.Sin(dec))
	return sky.FromRadians(sky.Angle(ra), sky.Angle(dec))
}

// Field draws n stars uniformly over the cap, with ids firstID, firstID+1...
// The same seed always yields the same rows.
func Field(seed int64, firstID uint64, n int, c sky.Cap) []starindex.Row {
	rng := rand.New(rand.NewSource(seed))
	cosR := math.Cos(c.Radius.Radians())
	rows := make([]starindex.Row, 0, n)
	for i := 0; i < n; i++ {
		d := math.Acos(1 - rng.Float64()*(1-cosR))
		pos := Offset(c.Center, d, rng.Float64()*2*math.Pi)

		r := 14 + 7*rng.Float64()
		colors := []float64{1.2 + 0.4*rng.Float64(), 0.5 + 0.3*rng.Float64(), 0, -0.2 - 0.1*rng.Float64(), -0.3 - 0.2*rng.Float64()}
		vals := make([]float64, 2*len(Bands))
		for j := range Bands {
			vals[j] = r + colors[j]
			vals[len(Bands)+j] = 0.005 + 0.05*rng.Float64()
		}
		// a few stars lack a u-band measurement
		if rng.Float64() < 0.02 {
			vals[0] = math.NaN()
			vals[len(Bands)] = math.NaN()
		}

		var flags starindex.Flags
		if rng.Float64() < 0.05 {
			flags |= starindex.FlagResolved
		}
		if rng.Float64() < 0.03 {
			flags |= starindex.FlagVariable
		}
		rows = append(rows, starindex.Row{
			ID:     firstID + uint64(i),
			Coord:  pos,
			Flags:  flags,
			Values: vals,
		})
	}
	return rows
}

// Options default to the synthetic columns, leaf res 7 and tiers 3 and 5.
// A non-nil empty Tiers builds a leaf-only index.
type Options struct {
	Release string
	Columns []string
	// LeafRes is nil for the default; Res(0) asks for resolution 0.
	LeafRes  *int
	Tiers    []int
	Compress bool
}

// Res returns a pointer for Options.LeafRes.
func Res(r int) *int { return &r }

func (o Options) withDefaults() Options {
	if o.Release == "" {
		o.Release = "synthetic"
	}
	if o.Columns == nil {
		o.Columns = Columns()
	}
	if o.LeafRes == nil {
		o.LeafRes = Res(7)
	}
	if o.Tiers == nil {
		o.Tiers = []int{3, 5}
	}
	return o
}

// Write builds an index from rows into dir and returns its path.
func Write(t testing.TB, dir, id string, rows []starindex.Row, opts Options) string {
	t.Helper()
	opts = opts.withDefaults()
	b, err := starindex.NewBuilder(starindex.BuildOptions{
		ID:       id,
		Release:  opts.Release,
		Columns:  opts.Columns,
		LeafRes:  *opts.LeafRes,
		Tiers:    opts.Tiers,
		Compress: opts.Compress,
	})
	if err != nil {
		t.Fatalf("NewBuilder(%s): %v", id, err)
	}
	for _, r := range rows {
		if err := b.Add(r); err != nil {
			t.Fatalf("Add to %s: %v", id, err)
		}
	}
	path := filepath.Join(dir, id+".h3sx")
	if err := b.WriteFile(path); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

// Within returns the rows inside the cap, by brute force.
func Within(rows []starindex.Row, c sky.Cap) []starindex.Row {
	var out []starindex.Row
	for _, r := range rows {
		if c.Contains(r.Coord) {
			out = append(out, r)
		}
	}
	return out
}
