package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// ToParent returns the ancestor of c at res, or c itself at its own
// resolution.
func (m *Mapper) ToParent(c h3.Cell, res int) (h3.Cell, error) {
	if err := validateRes(res); err != nil {
		return 0, err
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %s", c)
	}
	switch own := c.Resolution(); {
	case res > own:
		return 0, fmt.Errorf("resolution %d is finer than cell %s (res %d)", res, c, own)
	case res == own:
		return c, nil
	}
	p, err := c.Parent(res)
	if err != nil {
		return 0, fmt.Errorf("parent of %s at res %d: %w", c, res, err)
	}
	return p, nil
}

// ParseCell parses the hex form produced by h3.Cell.String.
func ParseCell(s string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", s)
	}
	return c, nil
}
