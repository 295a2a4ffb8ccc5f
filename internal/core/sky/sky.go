// Package sky defines celestial coordinates, angles and spherical caps.
package sky

import (
	"fmt"
	"math"
)

// Angle is an angle in radians.
type Angle float64

func Degrees(d float64) Angle { return Angle(d * math.Pi / 180) }

func Arcseconds(as float64) Angle { return Degrees(as / 3600) }

func (a Angle) Radians() float64 { return float64(a) }

func (a Angle) Degrees() float64 { return float64(a) * 180 / math.Pi }

func (a Angle) String() string { return fmt.Sprintf("%.6fdeg", a.Degrees()) }

// Coord is an ICRS position. RA is kept in [0, 2π), Dec in [-π/2, π/2].
type Coord struct {
	ra  Angle
	dec Angle
}

// NewCoord builds a coordinate from degrees.
func NewCoord(raDeg, decDeg float64) Coord {
	return FromRadians(Degrees(raDeg), Degrees(decDeg))
}

func FromRadians(ra, dec Angle) Coord {
	r := math.Mod(float64(ra), 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return Coord{ra: Angle(r), dec: dec}
}

func (c Coord) RA() Angle  { return c.ra }
func (c Coord) Dec() Angle { return c.dec }

func (c Coord) RADeg() float64  { return c.ra.Degrees() }
func (c Coord) DecDeg() float64 { return c.dec.Degrees() }

func (c Coord) IsValid() bool {
	d := float64(c.dec)
	return !math.IsNaN(float64(c.ra)) && !math.IsNaN(d) && d >= -math.Pi/2 && d <= math.Pi/2
}

func (c Coord) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.RADeg(), c.DecDeg())
}

// Vector returns the unit vector of the coordinate.
func (c Coord) Vector() [3]float64 {
	sd, cd := math.Sincos(float64(c.dec))
	sr, cr := math.Sincos(float64(c.ra))
	return [3]float64{cd * cr, cd * sr, sd}
}

// FromVector is the inverse of Vector; v need not be normalized.
func FromVector(v [3]float64) Coord {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return Coord{}
	}
	dec := math.Asin(clamp(v[2]/n, -1, 1))
	ra := math.Atan2(v[1], v[0])
	return FromRadians(Angle(ra), Angle(dec))
}

// Separation is the great-circle distance (Vincenty formula, stable at all
// separations).
func (c Coord) Separation(o Coord) Angle {
	s1, c1 := math.Sincos(float64(c.dec))
	s2, c2 := math.Sincos(float64(o.dec))
	sdl, cdl := math.Sincos(float64(o.ra - c.ra))

	num1 := c2 * sdl
	num2 := c1*s2 - s1*c2*cdl
	den := s1*s2 + c1*c2*cdl
	return Angle(math.Atan2(math.Hypot(num1, num2), den))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
