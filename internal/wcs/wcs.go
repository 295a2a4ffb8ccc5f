// Package wcs converts between pixel and sky coordinates.
//
// Pixel coordinates are zero-based: the centre of the first pixel is (0, 0).
// FITS metadata uses one-based CRPIX values; FromMetadata performs the shift.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

// WCS maps pixels to sky positions and back. Implementations must be safe
// for concurrent use.
type WCS interface {
	PixelToSky(p geom.Point) sky.Coord
	SkyToPixel(c sky.Coord) geom.Point
}

// TAN is a gnomonic projection with a linear CD matrix (degrees/pixel).
type TAN struct {
	crval sky.Coord
	crpix geom.Point
	cd    [2][2]float64
	cdInv [2][2]float64

	sinDec0, cosDec0 float64
}

var _ WCS = (*TAN)(nil)

var ErrSingularCD = errors.New("wcs: singular CD matrix")

// NewTAN builds a TAN projection; crpix is zero-based.
func NewTAN(crval sky.Coord, crpix geom.Point, cd [2][2]float64) (*TAN, error) {
	det := cd[0][0]*cd[1][1] - cd[0][1]*cd[1][0]
	if det == 0 || math.IsNaN(det) {
		return nil, ErrSingularCD
	}
	if !crval.IsValid() || !crpix.IsValid() {
		return nil, fmt.Errorf("wcs: invalid reference point crval=%s crpix=%s", crval, crpix)
	}
	w := &TAN{crval: crval, crpix: crpix, cd: cd}
	w.cdInv = [2][2]float64{
		{cd[1][1] / det, -cd[0][1] / det},
		{-cd[1][0] / det, cd[0][0] / det},
	}
	w.sinDec0, w.cosDec0 = math.Sincos(crval.Dec().Radians())
	return w, nil
}

func (w *TAN) CRVal() sky.Coord  { return w.crval }
func (w *TAN) CRPix() geom.Point { return w.crpix }

// PixelScale is the geometric mean pixel scale.
func (w *TAN) PixelScale() sky.Angle {
	det := w.cd[0][0]*w.cd[1][1] - w.cd[0][1]*w.cd[1][0]
	return sky.Degrees(math.Sqrt(math.Abs(det)))
}

func (w *TAN) PixelToSky(p geom.Point) sky.Coord {
	dx := p.X - w.crpix.X
	dy := p.Y - w.crpix.Y
	xi := (w.cd[0][0]*dx + w.cd[0][1]*dy) * math.Pi / 180
	eta := (w.cd[1][0]*dx + w.cd[1][1]*dy) * math.Pi / 180

	den := w.cosDec0 - eta*w.sinDec0
	ra := w.crval.RA().Radians() + math.Atan2(xi, den)
	dec := math.Atan2(w.sinDec0+eta*w.cosDec0, math.Hypot(xi, den))
	return sky.FromRadians(sky.Angle(ra), sky.Angle(dec))
}

// SkyToPixel returns a NaN point for positions on the far hemisphere, which
// have no gnomonic image.
func (w *TAN) SkyToPixel(c sky.Coord) geom.Point {
	sd, cd := math.Sincos(c.Dec().Radians())
	sdr, cdr := math.Sincos(c.RA().Radians() - w.crval.RA().Radians())

	cosc := w.sinDec0*sd + w.cosDec0*cd*cdr
	if cosc <= 0 {
		return geom.Point{X: math.NaN(), Y: math.NaN()}
	}
	xi := cd * sdr / cosc * 180 / math.Pi
	eta := (w.cosDec0*sd - w.sinDec0*cd*cdr) / cosc * 180 / math.Pi

	return geom.Point{
		X: w.cdInv[0][0]*xi + w.cdInv[0][1]*eta + w.crpix.X,
		Y: w.cdInv[1][0]*xi + w.cdInv[1][1]*eta + w.crpix.Y,
	}
}

// FromMetadata builds a TAN projection from FITS-style header cards
// (CTYPE1/2, CRVAL1/2, CRPIX1/2, CD1_1..CD2_2). Numeric cards may be any
// Go number type.
func FromMetadata(md map[string]any) (*TAN, error) {
	for _, k := range []string{"CTYPE1", "CTYPE2"} {
		v, _ := md[k].(string)
		if !strings.HasSuffix(strings.TrimSpace(v), "-TAN") {
			return nil, fmt.Errorf("wcs: %s=%q is not a TAN projection", k, v)
		}
	}
	if u, ok := md["CUNIT1"].(string); ok && strings.TrimSpace(u) != "deg" {
		return nil, fmt.Errorf("wcs: unsupported CUNIT1 %q", u)
	}

	var vals [8]float64
	names := [8]string{"CRVAL1", "CRVAL2", "CRPIX1", "CRPIX2", "CD1_1", "CD1_2", "CD2_1", "CD2_2"}
	for i, k := range names {
		f, ok := number(md[k])
		if !ok {
			// CD off-diagonals default to zero, everything else is required
			if k == "CD1_2" || k == "CD2_1" {
				continue
			}
			return nil, fmt.Errorf("wcs: missing or non-numeric %s", k)
		}
		vals[i] = f
	}
	return NewTAN(
		sky.NewCoord(vals[0], vals[1]),
		geom.Point{X: vals[2] - 1, Y: vals[3] - 1},
		[2][2]float64{{vals[4], vals[5]}, {vals[6], vals[7]}},
	)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
