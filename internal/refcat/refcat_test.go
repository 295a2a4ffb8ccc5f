package refcat

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]colmap.FilterColumns{
		{Filter: "g", Mag: "g", MagErr: "g_err"},
		{Filter: "r", Mag: "r"},
	}, [][2]string{{"my_r_camFlux", "r_flux"}})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestSchema_FieldsAndLookup(t *testing.T) {
	s := testSchema(t)
	want := []string{"id", "coord", "centroid", "hasCentroid", "photometric", "resolved", "variable", "g_flux", "g_fluxSigma", "r_flux"}
	if got := s.Names(); !slices.Equal(got, want) {
		t.Fatalf("names=%v", got)
	}
	for _, name := range []string{"coord", "coord_ra", "centroid_y", "my_r_camFlux", "g_fluxSigma"} {
		if !s.Has(name) {
			t.Fatalf("missing %q", name)
		}
	}
	f, err := s.Find("my_r_camFlux")
	if err != nil || f.Name != "r_flux" || f.Slot != 1 {
		t.Fatalf("alias resolved to %+v err=%v", f, err)
	}
	if _, err := s.Find("r_fluxSigma"); !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("r_fluxSigma: err=%v want ErrFieldNotFound", err)
	}
}

func TestNewSchema_RejectsBadAliases(t *testing.T) {
	fc := []colmap.FilterColumns{{Filter: "r", Mag: "r"}}
	if _, err := NewSchema(fc, [][2]string{{"x_camFlux", "z_flux"}}); err == nil {
		t.Fatalf("expected error for dangling alias")
	}
	if _, err := NewSchema(fc, [][2]string{{"r_flux", "r_flux"}}); err == nil {
		t.Fatalf("expected error for shadowing alias")
	}
}

func TestCatalog_ImmutableRecords(t *testing.T) {
	s := testSchema(t)
	b := NewBuilder(s)
	rec := Record{
		ID:          7,
		Coord:       sky.NewCoord(215.5, 53),
		Centroid:    geom.Point{X: 10, Y: 20},
		HasCentroid: true,
		Variable:    true,
		Flux:        []float64{1e-5, 2e-5},
		FluxSigma:   []float64{1e-7, math.NaN()},
	}
	if err := b.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Append(Record{ID: 8, Flux: []float64{1}}); err == nil {
		t.Fatalf("expected error for short flux slice")
	}
	rec.Flux[0] = -1
	c := b.Build()

	if c.Len() != 1 {
		t.Fatalf("len=%d", c.Len())
	}
	got := c.At(0)
	if got.Flux[0] != 1e-5 {
		t.Fatalf("builder kept caller's slice: %v", got.Flux)
	}
	got.Flux[1] = 0
	if again := c.At(0); again.Flux[1] != 2e-5 {
		t.Fatalf("catalog mutated through At: %v", again.Flux)
	}
	if got.Photometric() {
		t.Fatalf("variable star must not be photometric")
	}
}

func TestCatalog_ValueByName(t *testing.T) {
	s := testSchema(t)
	b := NewBuilder(s)
	_ = b.Append(Record{
		ID:        42,
		Coord:     sky.NewCoord(10, -5),
		Flux:      []float64{3, 4},
		FluxSigma: []float64{0.3, math.NaN()},
	})
	c := b.Build()

	if v, err := c.Float(0, "my_r_camFlux"); err != nil || v != 4 {
		t.Fatalf("my_r_camFlux=%v err=%v", v, err)
	}
	if v, err := c.Float(0, "g_fluxSigma"); err != nil || v != 0.3 {
		t.Fatalf("g_fluxSigma=%v err=%v", v, err)
	}
	if v, err := c.Float(0, "coord_dec"); err != nil || math.Abs(v+5) > 1e-12 {
		t.Fatalf("coord_dec=%v err=%v", v, err)
	}
	if v, err := c.Value(0, "id"); err != nil || v.(uint64) != 42 {
		t.Fatalf("id=%v err=%v", v, err)
	}
	if v, err := c.Value(0, "photometric"); err != nil || v != true {
		t.Fatalf("photometric=%v err=%v", v, err)
	}
	if _, err := c.Float(0, "hasCentroid"); err == nil {
		t.Fatalf("expected non-numeric error")
	}
	if _, err := c.Value(0, "nope"); !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("err=%v want ErrFieldNotFound", err)
	}

	n := 0
	for i, r := range c.All() {
		if i != 0 || r.ID != 42 {
			t.Fatalf("All yielded %d/%d", i, r.ID)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("All yielded %d records", n)
	}
}
