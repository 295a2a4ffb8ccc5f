package sky

import (
	"math"
	"testing"
)

func almostEq(t *testing.T, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("got=%.15g want=%.15g (eps=%g)", got, want, eps)
	}
}

func TestNewCoord_NormalizesRA(t *testing.T) {
	c := NewCoord(-10, 20)
	almostEq(t, c.RADeg(), 350, 1e-9)
	almostEq(t, c.DecDeg(), 20, 1e-9)

	c = NewCoord(725, -5)
	almostEq(t, c.RADeg(), 5, 1e-9)
}

func TestSeparation_KnownValues(t *testing.T) {
	a := NewCoord(0, 0)
	almostEq(t, a.Separation(NewCoord(90, 0)).Degrees(), 90, 1e-9)
	almostEq(t, a.Separation(NewCoord(0, 90)).Degrees(), 90, 1e-9)
	almostEq(t, a.Separation(NewCoord(180, 0)).Degrees(), 180, 1e-9)

	// across the RA wrap
	almostEq(t, NewCoord(359.5, 0).Separation(NewCoord(0.5, 0)).Degrees(), 1, 1e-9)

	// one arcsecond stays resolvable
	b := NewCoord(215.5, 53)
	c := NewCoord(215.5, 53+1.0/3600)
	almostEq(t, b.Separation(c).Degrees()*3600, 1, 1e-6)
}

func TestVector_RoundTrip(t *testing.T) {
	for _, c := range []Coord{NewCoord(215.5, 53), NewCoord(0, -89.9), NewCoord(359.99, 12)} {
		back := FromVector(c.Vector())
		if sep := c.Separation(back).Degrees(); sep > 1e-9 {
			t.Fatalf("round trip of %s drifted by %g deg", c, sep)
		}
	}
}

func TestCap_ContainsAndIntersects(t *testing.T) {
	a := Cap{Center: NewCoord(10, 10), Radius: Degrees(1)}
	if !a.Contains(NewCoord(10.5, 10)) {
		t.Fatalf("expected point inside cap")
	}
	if a.Contains(NewCoord(12, 10)) {
		t.Fatalf("expected point outside cap")
	}

	b := Cap{Center: NewCoord(11.9, 10), Radius: Degrees(1)}
	if !a.Intersects(b) || !b.Intersects(a) {
		t.Fatalf("expected overlapping caps to intersect")
	}
	far := Cap{Center: NewCoord(20, 10), Radius: Degrees(1)}
	if a.Intersects(far) {
		t.Fatalf("expected distant caps not to intersect")
	}
}

func TestCap_Covers(t *testing.T) {
	big := Cap{Center: NewCoord(215.5, 53), Radius: Degrees(15)}
	field := Cap{Center: NewCoord(215.5, 53), Radius: Degrees(0.3)}
	if !big.Covers(field) {
		t.Fatalf("%s should cover %s", big, field)
	}
	if field.Covers(big) {
		t.Fatalf("small cap cannot cover a larger one")
	}
	edge := Cap{Center: NewCoord(215.5, 63), Radius: Degrees(10)}
	if edge.Covers(field) || !edge.Intersects(field) {
		t.Fatalf("cap through the field centre should intersect but not cover it")
	}
}
