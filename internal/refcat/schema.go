// Package refcat is the self-describing reference catalog returned by a
// load: a schema derived from the configured filters and immutable records.
package refcat

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/h3-refcat/internal/colmap"
)

var ErrFieldNotFound = errors.New("field not found")

type Kind uint8

const (
	KindID Kind = iota
	KindCoord
	KindAngle
	KindPoint
	KindPixel
	KindFlag
	KindFlux
	KindFluxSigma
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindCoord:
		return "coord"
	case KindAngle:
		return "angle"
	case KindPoint:
		return "point"
	case KindPixel:
		return "pixel"
	case KindFlag:
		return "flag"
	case KindFlux:
		return "flux"
	case KindFluxSigma:
		return "fluxSigma"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Field struct {
	Name  string
	Kind  Kind
	Units string
	Doc   string
	// Slot is the filter position for flux fields.
	Slot int
}

const (
	FieldID          = "id"
	FieldCoord       = "coord"
	FieldCentroid    = "centroid"
	FieldHasCentroid = "hasCentroid"
	FieldPhotometric = "photometric"
	FieldResolved    = "resolved"
	FieldVariable    = "variable"
)

// Schema lists the fields of a catalog in order. Compound fields (coord,
// centroid) have "_ra"/"_dec" and "_x"/"_y" subfields that Find resolves;
// aliases resolve to their target field.
type Schema struct {
	fields  []Field
	byName  map[string]int
	aliases map[string]string
	filters []string
}

// NewSchema builds the schema for the given filters and aliases. It
// depends only on configuration, never on the rows loaded.
func NewSchema(filters []colmap.FilterColumns, aliases [][2]string) (*Schema, error) {
	s := &Schema{byName: map[string]int{}, aliases: map[string]string{}}
	add := func(f Field) error {
		if _, dup := s.byName[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
		return nil
	}

	core := []Field{
		{Name: FieldID, Kind: KindID, Doc: "catalog identity"},
		{Name: FieldCoord, Kind: KindCoord, Units: "deg", Doc: "ICRS position"},
		{Name: FieldCentroid, Kind: KindPoint, Units: "pixel", Doc: "position on the image"},
		{Name: FieldHasCentroid, Kind: KindFlag, Doc: "centroid is set"},
		{Name: FieldPhotometric, Kind: KindFlag, Doc: "usable for photometric calibration"},
		{Name: FieldResolved, Kind: KindFlag, Doc: "extended source"},
		{Name: FieldVariable, Kind: KindFlag, Doc: "variable source"},
	}
	for _, f := range core {
		if err := add(f); err != nil {
			return nil, err
		}
	}
	for i, fc := range filters {
		s.filters = append(s.filters, fc.Filter)
		if err := add(Field{Name: fc.FluxField(), Kind: KindFlux, Units: "Jy", Doc: fc.Filter + " flux", Slot: i}); err != nil {
			return nil, err
		}
		if name := fc.FluxSigmaField(); name != "" {
			if err := add(Field{Name: name, Kind: KindFluxSigma, Units: "Jy", Doc: fc.Filter + " flux error", Slot: i}); err != nil {
				return nil, err
			}
		}
	}
	for _, a := range aliases {
		if _, ok := s.byName[a[1]]; !ok {
			return nil, fmt.Errorf("alias %q targets unknown field %q", a[0], a[1])
		}
		if _, clash := s.byName[a[0]]; clash {
			return nil, fmt.Errorf("alias %q shadows a field", a[0])
		}
		s.aliases[a[0]] = a[1]
	}
	return s, nil
}

// Find resolves a field, alias or subfield name.
func (s *Schema) Find(name string) (Field, error) {
	if target, ok := s.aliases[name]; ok {
		name = target
	}
	if i, ok := s.byName[name]; ok {
		return s.fields[i], nil
	}
	switch name {
	case "coord_ra", "coord_dec":
		return Field{Name: name, Kind: KindAngle, Units: "deg"}, nil
	case "centroid_x", "centroid_y":
		return Field{Name: name, Kind: KindPixel, Units: "pixel"}, nil
	}
	return Field{}, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

func (s *Schema) Has(name string) bool {
	_, err := s.Find(name)
	return err == nil
}

// Names returns the top-level field names in order, aliases excluded.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) Fields() []Field { return slices.Clone(s.fields) }

// Aliases returns alias -> target.
func (s *Schema) Aliases() map[string]string {
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

func (s *Schema) Filters() []string { return slices.Clone(s.filters) }

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("schema{")
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%s", f.Name, f.Kind)
	}
	b.WriteString("}")
	return b.String()
}
