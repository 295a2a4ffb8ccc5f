// Package geom holds pixel-space points and boxes.
package geom

import (
	"fmt"
	"math"
)

type Point struct {
	X, Y float64
}

func (p Point) IsValid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func (p Point) String() string { return fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y) }

// Box is a continuous pixel box covering [Min, Max) on both axes.
type Box struct {
	Min, Max Point
}

func NewBox(minX, minY, maxX, maxY float64) Box {
	return Box{Min: Point{X: minX, Y: minY}, Max: Point{X: maxX, Y: maxY}}
}

// BoxFromPixels converts an integer pixel box (origin + dimensions) into
// its continuous extent: pixel i covers [i-0.5, i+0.5).
func BoxFromPixels(x0, y0, width, height int) Box {
	return NewBox(
		float64(x0)-0.5,
		float64(y0)-0.5,
		float64(x0+width)-0.5,
		float64(y0+height)-0.5,
	)
}

// IsEmpty is true for zero-area, inverted or NaN boxes.
func (b Box) IsEmpty() bool {
	return !(b.Max.X > b.Min.X && b.Max.Y > b.Min.Y)
}

func (b Box) Width() float64  { return b.Max.X - b.Min.X }
func (b Box) Height() float64 { return b.Max.Y - b.Min.Y }

func (b Box) Center() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

// Grow pads the box by m on every side; a negative m shrinks it.
func (b Box) Grow(m float64) Box {
	return NewBox(b.Min.X-m, b.Min.Y-m, b.Max.X+m, b.Max.Y+m)
}

func (b Box) Corners() [4]Point {
	return [4]Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
	}
}

func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X < b.Max.X && p.Y >= b.Min.Y && p.Y < b.Max.Y
}

func (b Box) String() string {
	return fmt.Sprintf("box[%s, %s)", b.Min, b.Max)
}
