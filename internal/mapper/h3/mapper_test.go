package h3mapper

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

// offset returns the point at angular distance d along bearing b from c.
func offset(c sky.Coord, d, b float64) sky.Coord {
	dec0 := c.Dec().Radians()
	ra0 := c.RA().Radians()
	dec := math.Asin(math.Sin(dec0)*math.Cos(d) + math.Cos(dec0)*math.Sin(d)*math.Cos(b))
	ra := ra0 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(dec0), math.Cos(d)-math.Sin(dec0)*math.Sin(dec))
	return sky.FromRadians(sky.Angle(ra), sky.Angle(dec))
}

func TestCellsForCap_SortedUniqueDeterministic(t *testing.T) {
	m := New()
	q := sky.Cap{Center: sky.NewCoord(215.5, 53), Radius: sky.Degrees(0.2)}

	cells, err := m.CellsForCap(q, 6)
	if err != nil {
		t.Fatalf("CellsForCap: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty coverage")
	}
	if !sort.SliceIsSorted(cells, func(i, j int) bool { return cells[i] < cells[j] }) {
		t.Fatalf("cells must be sorted")
	}
	seen := map[h3.Cell]struct{}{}
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			t.Fatalf("duplicate cell %s", c)
		}
		seen[c] = struct{}{}
	}
	again, err := m.CellsForCap(q, 6)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !reflect.DeepEqual(cells, again) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestCellsForCap_CoversEveryPointInCap(t *testing.T) {
	m := New()
	rng := rand.New(rand.NewSource(7))

	for _, tc := range []struct {
		center sky.Coord
		radius float64
		res    int
	}{
		{sky.NewCoord(215.5, 53), 0.15, 7},
		{sky.NewCoord(0.05, -10), 0.5, 5}, // straddles RA=0
		{sky.NewCoord(120, 89.8), 0.5, 5}, // near the pole
		{sky.NewCoord(33, 0), 2, 3},
	} {
		q := sky.Cap{Center: tc.center, Radius: sky.Degrees(tc.radius)}
		cells, err := m.CellsForCap(q, tc.res)
		if err != nil {
			t.Fatalf("CellsForCap(%s): %v", q, err)
		}
		set := make(map[h3.Cell]struct{}, len(cells))
		for _, c := range cells {
			set[c] = struct{}{}
		}
		for i := 0; i < 2000; i++ {
			d := q.Radius.Radians() * math.Sqrt(rng.Float64())
			p := offset(tc.center, d, rng.Float64()*2*math.Pi)
			cell, err := m.CellForCoord(p, tc.res)
			if err != nil {
				t.Fatalf("CellForCoord: %v", err)
			}
			if _, ok := set[cell]; !ok {
				t.Fatalf("point %s inside %s not covered at res %d", p, q, tc.res)
			}
		}
	}
}

func TestCellsForCap_ZeroRadiusIsSingleCell(t *testing.T) {
	m := New()
	c := sky.NewCoord(10, 10)
	cells, err := m.CellsForCap(sky.Cap{Center: c, Radius: 0}, 4)
	if err != nil {
		t.Fatalf("CellsForCap: %v", err)
	}
	want, err := m.CellForCoord(c, 4)
	if err != nil {
		t.Fatalf("CellForCoord: %v", err)
	}
	found := false
	for _, x := range cells {
		if x == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("coverage %v lacks the centre cell %s", cells, want)
	}
}

func TestBounds_InvalidResolutionAndRadius(t *testing.T) {
	m := New()
	q := sky.Cap{Center: sky.NewCoord(11, 55), Radius: sky.Degrees(1)}
	if _, err := m.CellsForCap(q, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.CellsForCap(q, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	q.Radius = -1
	if _, err := m.CellsForCap(q, 3); err == nil {
		t.Fatalf("expected error for negative radius")
	}
}

func TestCellsForCap_LimitEnforced(t *testing.T) {
	m := New().WithMaxCells(10)
	q := sky.Cap{Center: sky.NewCoord(40, 20), Radius: sky.Degrees(3)}
	if _, err := m.CellsForCap(q, 6); err == nil {
		t.Fatalf("expected ErrTooManyCells")
	}
}

func TestCellRadius_ShrinksWithResolution(t *testing.T) {
	m := New()
	c := sky.NewCoord(215.5, 53)
	prev := math.Inf(1)
	for res := 0; res <= 8; res++ {
		r, err := m.CellRadius(c, res)
		if err != nil {
			t.Fatalf("CellRadius(%d): %v", res, err)
		}
		if r.Radians() >= prev {
			t.Fatalf("radius at res %d (%s) not smaller than res %d", res, r, res-1)
		}
		prev = r.Radians()
	}
}

func TestCellsForCap_HugeCapFailsFast(t *testing.T) {
	m := New()
	q := sky.Cap{Center: sky.NewCoord(215.5, 63), Radius: sky.Degrees(10)}
	start := time.Now()
	_, err := m.CellsForCap(q, 7)
	if !errors.Is(err, ErrTooManyCells) {
		t.Fatalf("err=%v want ErrTooManyCells", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("rejecting the cap took %s", took)
	}
}
