package sky

import "fmt"

// Cap is a spherical cap: every point within Radius of Center.
type Cap struct {
	Center Coord
	Radius Angle
}

func (c Cap) Contains(p Coord) bool {
	return c.Center.Separation(p) <= c.Radius
}

// Intersects reports whether the two caps share any point. The test is
// padded by eps so rounding never excludes a touching pair.
func (c Cap) Intersects(o Cap) bool {
	const eps = 1e-12
	return c.Center.Separation(o.Center) <= c.Radius+o.Radius+eps
}

// Covers reports whether every point of o lies inside c.
func (c Cap) Covers(o Cap) bool {
	return c.Center.Separation(o.Center)+o.Radius <= c.Radius
}

func (c Cap) String() string {
	return fmt.Sprintf("cap{center=%s radius=%s}", c.Center, c.Radius)
}
