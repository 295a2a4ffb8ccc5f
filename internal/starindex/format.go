// Package starindex reads and writes multi-resolution star index files.
//
// A file buckets reference stars by H3 cell at a leaf resolution; each
// bucket is one block. Every tier maps cells of a coarser resolution to the
// blocks beneath them, so a query can pick the resolution that suits its
// radius and read only the blocks it needs.
//
// Layout (little endian):
//
//	header : magic "H3SX" | version u16 | flags u16 | metaLen u32 | metaSum u64
//	meta   : id | release | footprint | leafRes | columns | blocks | tiers
//	data   : blocks, zstd-compressed when flagZstd is set
//	row    : id u64 | ra f64 | dec f64 | flags u8 | one f64 per column
//
// Positions are stored in radians so they read back bit-identical.
package starindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

const (
	magic         = "H3SX"
	formatVersion = uint16(1)
	headerSize    = 20

	flagZstd = uint16(1 << 0)
)

var (
	ErrUnavailable = errors.New("star index unavailable")
	ErrCorrupt     = errors.New("star index corrupt")
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Flags are per-row catalog flags.
type Flags uint8

const (
	FlagResolved Flags = 1 << 0
	FlagVariable Flags = 1 << 1
)

func (f Flags) Resolved() bool { return f&FlagResolved != 0 }
func (f Flags) Variable() bool { return f&FlagVariable != 0 }

// Columns is an ordered, immutable set of native column names.
type Columns struct {
	names []string
	idx   map[string]int
}

func NewColumns(names []string) (*Columns, error) {
	c := &Columns{names: slices.Clone(names), idx: make(map[string]int, len(names))}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := c.idx[n]; dup {
			return nil, fmt.Errorf("duplicate column %q", n)
		}
		c.idx[n] = i
	}
	return c, nil
}

func (c *Columns) Len() int { return len(c.names) }

func (c *Columns) Names() []string { return slices.Clone(c.names) }

func (c *Columns) Index(name string) (int, bool) {
	i, ok := c.idx[name]
	return i, ok
}

// Missing lists the names not present in c, in input order.
func (c *Columns) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := c.idx[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Row is one catalog entry as stored on disk. Values line up with the
// file's Columns; NaN marks a missing measurement.
type Row struct {
	ID     uint64
	Coord  sky.Coord
	Flags  Flags
	Values []float64

	// Res is the tier resolution that served the row, Index the file id.
	Res   int
	Index string

	cols *Columns
}

func (r Row) Columns() *Columns { return r.cols }

func (r Row) Value(name string) (float64, bool) {
	if r.cols == nil {
		return 0, false
	}
	i, ok := r.cols.Index(name)
	if !ok || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

func rowSize(nCols int) int { return 8 + 8 + 8 + 1 + 8*nCols }

// --- binary helpers ---

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)    { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16)  { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32)  { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64)  { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) f64(v float64) { e.u64(math.Float64bits(v)) }

func (e *encoder) str(s string) {
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

// decoder records the first overrun and returns zero values afterwards.
type decoder struct {
	b   []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.b) {
		d.err = corruptf("meta truncated at offset %d (need %d bytes)", d.off, n)
		return nil
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) u8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if p := d.take(8); p != nil {
		return binary.LittleEndian.Uint64(p)
	}
	return 0
}

func (d *decoder) f64() float64 { return math.Float64frombits(d.u64()) }

func (d *decoder) str() string {
	n := int(d.u16())
	return string(d.take(n))
}
