// Package region turns load requests into sky circles for index selection,
// and provides the exact containment tests applied to the rows found.
package region

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

var ErrInvalidRegion = errors.New("invalid region")

// Region is a sky circle. It may over-cover the area asked for.
type Region struct {
	Center sky.Coord
	Radius sky.Angle
}

func (r Region) Cap() sky.Cap { return sky.Cap{Center: r.Center, Radius: r.Radius} }

func (r Region) String() string { return fmt.Sprintf("circle(%s, r=%s)", r.Center, r.Radius) }

// ForPixelBox returns the circle around bbox grown by margin pixels. The
// centre is the sky position of the box centre; the radius is the largest
// separation from it to a corner of the grown box.
func ForPixelBox(bbox geom.Box, w wcs.WCS, margin float64) (Region, error) {
	if w == nil {
		return Region{}, fmt.Errorf("%w: no projection", ErrInvalidRegion)
	}
	if bbox.IsEmpty() || !bbox.Min.IsValid() || !bbox.Max.IsValid() {
		return Region{}, fmt.Errorf("%w: degenerate box %s", ErrInvalidRegion, bbox)
	}
	if !(margin >= 0) || math.IsInf(margin, 0) {
		return Region{}, fmt.Errorf("%w: pixel margin %g", ErrInvalidRegion, margin)
	}

	grown := bbox.Grow(margin)
	center := w.PixelToSky(grown.Center())
	if !center.IsValid() {
		return Region{}, fmt.Errorf("%w: box centre %s does not project", ErrInvalidRegion, grown.Center())
	}
	var radius sky.Angle
	for _, p := range grown.Corners() {
		c := w.PixelToSky(p)
		if !c.IsValid() {
			return Region{}, fmt.Errorf("%w: corner %s does not project", ErrInvalidRegion, p)
		}
		radius = max(radius, center.Separation(c))
	}
	return Region{Center: center, Radius: radius}, nil
}

// ForSkyCircle validates and passes the circle through.
func ForSkyCircle(center sky.Coord, radius sky.Angle) (Region, error) {
	if !center.IsValid() {
		return Region{}, fmt.Errorf("%w: centre %s", ErrInvalidRegion, center)
	}
	if !(radius >= 0) || math.IsInf(float64(radius), 0) {
		return Region{}, fmt.Errorf("%w: radius %s", ErrInvalidRegion, radius)
	}
	return Region{Center: center, Radius: min(radius, sky.Angle(math.Pi))}, nil
}
