package region

import (
	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/wcs"
)

// PixelBoxFilter keeps positions whose pixel lies in the box grown by the
// margin.
type PixelBoxFilter struct {
	box geom.Box
	wcs wcs.WCS
}

func NewPixelBoxFilter(bbox geom.Box, w wcs.WCS, margin float64) PixelBoxFilter {
	return PixelBoxFilter{box: bbox.Grow(margin), wcs: w}
}

func (f PixelBoxFilter) Box() geom.Box { return f.box }

// Project returns the pixel of c and whether it is inside the box.
func (f PixelBoxFilter) Project(c sky.Coord) (geom.Point, bool) {
	p := f.wcs.SkyToPixel(c)
	if !p.IsValid() {
		return p, false
	}
	return p, f.box.Contains(p)
}

// SkyCircleFilter keeps positions within the circle, edge included.
type SkyCircleFilter struct {
	cap sky.Cap
}

func NewSkyCircleFilter(r Region) SkyCircleFilter { return SkyCircleFilter{cap: r.Cap()} }

func (f SkyCircleFilter) Contains(c sky.Coord) bool { return f.cap.Contains(c) }
