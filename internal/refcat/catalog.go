package refcat

import (
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/mohammed-shakir/h3-refcat/internal/core/geom"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

type Record struct {
	ID          uint64
	Coord       sky.Coord
	Centroid    geom.Point
	HasCentroid bool
	Resolved    bool
	Variable    bool
	// Flux and FluxSigma are indexed by filter slot; FluxSigma entries of
	// filters without an error field are NaN.
	Flux      []float64
	FluxSigma []float64
}

func (r Record) Photometric() bool { return !r.Resolved && !r.Variable }

func (r Record) clone() Record {
	r.Flux = slices.Clone(r.Flux)
	r.FluxSigma = slices.Clone(r.FluxSigma)
	return r
}

// Get returns a field value: numbers as float64, flags as bool, id as
// uint64, coord as sky.Coord and centroid as geom.Point.
func (r Record) Get(f Field) any {
	switch f.Name {
	case FieldID:
		return r.ID
	case FieldCoord:
		return r.Coord
	case "coord_ra":
		return r.Coord.RADeg()
	case "coord_dec":
		return r.Coord.DecDeg()
	case FieldCentroid:
		return r.Centroid
	case "centroid_x":
		return r.Centroid.X
	case "centroid_y":
		return r.Centroid.Y
	case FieldHasCentroid:
		return r.HasCentroid
	case FieldPhotometric:
		return r.Photometric()
	case FieldResolved:
		return r.Resolved
	case FieldVariable:
		return r.Variable
	}
	switch f.Kind {
	case KindFlux:
		return r.Flux[f.Slot]
	case KindFluxSigma:
		return r.FluxSigma[f.Slot]
	}
	return nil
}

// Catalog is immutable; accessors hand out copies.
type Catalog struct {
	schema  *Schema
	records []Record
}

func (c *Catalog) Schema() *Schema { return c.schema }
func (c *Catalog) Len() int        { return len(c.records) }

func (c *Catalog) At(i int) Record { return c.records[i].clone() }

func (c *Catalog) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, r := range c.records {
			if !yield(i, r.clone()) {
				return
			}
		}
	}
}

// Value looks up a field by name on record i.
func (c *Catalog) Value(i int, name string) (any, error) {
	f, err := c.schema.Find(name)
	if err != nil {
		return nil, err
	}
	return c.records[i].Get(f), nil
}

// Float is Value for numeric fields.
func (c *Catalog) Float(i int, name string) (float64, error) {
	v, err := c.Value(i, name)
	if err != nil {
		return math.NaN(), err
	}
	x, ok := v.(float64)
	if !ok {
		return math.NaN(), fmt.Errorf("field %q is not numeric", name)
	}
	return x, nil
}

// Builder accumulates records for one catalog.
type Builder struct {
	schema  *Schema
	records []Record
}

func NewBuilder(s *Schema) *Builder { return &Builder{schema: s} }

func (b *Builder) Append(r Record) error {
	n := len(b.schema.filters)
	if len(r.Flux) != n || len(r.FluxSigma) != n {
		return fmt.Errorf("record %d has %d/%d flux values, want %d", r.ID, len(r.Flux), len(r.FluxSigma), n)
	}
	b.records = append(b.records, r.clone())
	return nil
}

func (b *Builder) Len() int { return len(b.records) }

// Build returns the catalog; the builder must not be used afterwards.
func (b *Builder) Build() *Catalog {
	c := &Catalog{schema: b.schema, records: b.records}
	b.records = nil
	return c
}
