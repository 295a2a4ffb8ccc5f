package region

import (
	"errors"
	"math"
	"testing"

	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

func testWCS(t *testing.T) *wcs.TAN {
	t.Helper()
	w, err := wcs.NewTAN(sky.NewCoord(215.5, 53), geom.Point{X: 1500, Y: 1500},
		[2][2]float64{{5.1e-5, 0}, {0, -5.1e-5}})
	if err != nil {
		t.Fatalf("NewTAN: %v", err)
	}
	return w
}

func TestForPixelBox_CentreAndRadius(t *testing.T) {
	w := testWCS(t)
	bbox := geom.BoxFromPixels(0, 0, 3001, 3001)
	r, err := ForPixelBox(bbox, w, 50)
	if err != nil {
		t.Fatalf("ForPixelBox: %v", err)
	}
	if sep := r.Center.Separation(sky.NewCoord(215.5, 53)).Degrees(); sep > 1e-9 {
		t.Fatalf("centre is %g deg off crval", sep)
	}
	// half diagonal of a 3101 px square at 5.1e-5 deg/px, small angle
	want := math.Sqrt2 * 1550.5 * 5.1e-5
	if got := r.Radius.Degrees(); math.Abs(got-want) > 1e-5 {
		t.Fatalf("radius=%g want ~%g", got, want)
	}
}

func TestForPixelBox_CoversGrownBox(t *testing.T) {
	w := testWCS(t)
	bbox := geom.BoxFromPixels(200, 700, 1000, 400)
	const margin = 25.0
	r, err := ForPixelBox(bbox, w, margin)
	if err != nil {
		t.Fatalf("ForPixelBox: %v", err)
	}
	grown := bbox.Grow(margin)
	c := r.Cap()
	for i := 0; i <= 20; i++ {
		for j := 0; j <= 20; j++ {
			p := geom.Point{
				X: grown.Min.X + grown.Width()*float64(i)/20,
				Y: grown.Min.Y + grown.Height()*float64(j)/20,
			}
			if !c.Contains(w.PixelToSky(p)) {
				t.Fatalf("pixel %s of the grown box is outside %s", p, r)
			}
		}
	}
}

func TestForPixelBox_Rejects(t *testing.T) {
	w := testWCS(t)
	good := geom.BoxFromPixels(0, 0, 10, 10)
	cases := map[string]func() error{
		"nil wcs": func() error { _, err := ForPixelBox(good, nil, 0); return err },
		"empty box": func() error {
			_, err := ForPixelBox(geom.BoxFromPixels(0, 0, 0, 10), w, 0)
			return err
		},
		"nan box": func() error {
			_, err := ForPixelBox(geom.NewBox(math.NaN(), 0, 1, 1), w, 0)
			return err
		},
		"negative margin": func() error { _, err := ForPixelBox(good, w, -1); return err },
		"nan margin":      func() error { _, err := ForPixelBox(good, w, math.NaN()); return err },
	}
	for name, f := range cases {
		if err := f(); !errors.Is(err, ErrInvalidRegion) {
			t.Fatalf("%s: err=%v want ErrInvalidRegion", name, err)
		}
	}
}

func TestForSkyCircle(t *testing.T) {
	c := sky.NewCoord(215.5, 53)
	r, err := ForSkyCircle(c, 0)
	if err != nil || r.Radius != 0 || r.Center != c {
		t.Fatalf("zero radius: %v err=%v", r, err)
	}
	if r, err := ForSkyCircle(c, sky.Degrees(400)); err != nil || r.Radius != sky.Angle(math.Pi) {
		t.Fatalf("huge radius not clamped: %v err=%v", r, err)
	}
	for _, bad := range []sky.Angle{-1e-9, sky.Angle(math.NaN()), sky.Angle(math.Inf(1))} {
		if _, err := ForSkyCircle(c, bad); !errors.Is(err, ErrInvalidRegion) {
			t.Fatalf("radius %v: err=%v want ErrInvalidRegion", float64(bad), err)
		}
	}
	if _, err := ForSkyCircle(sky.NewCoord(0, 95), sky.Degrees(1)); !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("bad centre: err=%v want ErrInvalidRegion", err)
	}
}

func TestPixelBoxFilter_HalfOpenEdges(t *testing.T) {
	w := testWCS(t)
	f := NewPixelBoxFilter(geom.BoxFromPixels(0, 0, 3001, 3001), w, 50)
	if b := f.Box(); b.Min.X != -50.5 || b.Max.X != 3050.5 {
		t.Fatalf("box=%s", b)
	}
	for _, tc := range []struct {
		p    geom.Point
		want bool
	}{
		{geom.Point{X: 1500, Y: 1500}, true},
		{geom.Point{X: -50.4, Y: 10}, true},
		{geom.Point{X: -50.6, Y: 10}, false},
		{geom.Point{X: 3050.4, Y: 3050.4}, true},
		{geom.Point{X: 3050.6, Y: 100}, false},
		{geom.Point{X: 100, Y: 3050.6}, false},
	} {
		p, ok := f.Project(w.PixelToSky(tc.p))
		if ok != tc.want {
			t.Fatalf("pixel %s: inside=%v want %v (projected %s)", tc.p, ok, tc.want, p)
		}
	}
	if _, ok := f.Project(sky.NewCoord(35.5, -53)); ok {
		t.Fatalf("antipode must not be inside")
	}
}

func TestSkyCircleFilter_IncludesEdge(t *testing.T) {
	r, err := ForSkyCircle(sky.NewCoord(10, 0), sky.Degrees(1))
	if err != nil {
		t.Fatalf("ForSkyCircle: %v", err)
	}
	f := NewSkyCircleFilter(r)
	if !f.Contains(sky.NewCoord(10, 0.999)) || f.Contains(sky.NewCoord(10, 1.001)) {
		t.Fatalf("edge handling wrong")
	}
}
