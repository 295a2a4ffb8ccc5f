package starindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	h3mapper "github.com/mohammed-shakir/h3-refcat/internal/mapper/h3"
)

type BuildOptions struct {
	ID      string
	Release string
	Columns []string

	// LeafRes is the H3 resolution of the blocks; Tiers lists coarser
	// resolutions that get their own directory. The leaf is always a tier.
	LeafRes  int
	Tiers    []int
	Compress bool
}

// Builder accumulates rows in memory and writes one index file.
type Builder struct {
	opts   BuildOptions
	cols   *Columns
	tiers  []int
	mapper *h3mapper.Mapper

	leaves map[h3.Cell][]Row
	nRows  int
	ids    map[uint64]struct{}
}

func NewBuilder(opts BuildOptions) (*Builder, error) {
	if opts.ID == "" {
		return nil, errors.New("index id is required")
	}
	if len(opts.ID) > math.MaxUint16 || len(opts.Release) > math.MaxUint16 {
		return nil, errors.New("index id or release name too long")
	}
	if opts.LeafRes < 0 || opts.LeafRes > 15 {
		return nil, fmt.Errorf("invalid leaf resolution %d", opts.LeafRes)
	}
	if len(opts.Columns) > math.MaxUint16 {
		return nil, fmt.Errorf("too many columns (%d)", len(opts.Columns))
	}
	cols, err := NewColumns(opts.Columns)
	if err != nil {
		return nil, err
	}

	tiers := []int{opts.LeafRes}
	for _, r := range opts.Tiers {
		if r < 0 || r > opts.LeafRes {
			return nil, fmt.Errorf("tier resolution %d must be within 0..%d", r, opts.LeafRes)
		}
		if !slices.Contains(tiers, r) {
			tiers = append(tiers, r)
		}
	}
	slices.Sort(tiers)

	return &Builder{
		opts:   opts,
		cols:   cols,
		tiers:  tiers,
		mapper: h3mapper.New(),
		leaves: make(map[h3.Cell][]Row),
		ids:    make(map[uint64]struct{}),
	}, nil
}

// Add buckets a row into its leaf cell. Row ids must be unique per file.
func (b *Builder) Add(r Row) error {
	if len(r.Values) != b.cols.Len() {
		return fmt.Errorf("row %d has %d values, want %d", r.ID, len(r.Values), b.cols.Len())
	}
	if !r.Coord.IsValid() {
		return fmt.Errorf("row %d has invalid coordinate %s", r.ID, r.Coord)
	}
	if _, dup := b.ids[r.ID]; dup {
		return fmt.Errorf("duplicate row id %d", r.ID)
	}
	cell, err := b.mapper.CellForCoord(r.Coord, b.opts.LeafRes)
	if err != nil {
		return err
	}
	r.Values = slices.Clone(r.Values)
	b.leaves[cell] = append(b.leaves[cell], r)
	b.ids[r.ID] = struct{}{}
	b.nRows++
	return nil
}

func (b *Builder) Len() int { return b.nRows }

type builtBlock struct {
	ref     blockRef
	payload []byte
}

// WriteTo serializes the index. The builder can keep accepting rows and be
// written again.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	cells := make([]h3.Cell, 0, len(b.leaves))
	for c := range b.leaves {
		cells = append(cells, c)
	}
	slices.Sort(cells)

	var enc *zstd.Encoder
	if b.opts.Compress {
		var err error
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return 0, fmt.Errorf("zstd writer: %w", err)
		}
		defer func() { _ = enc.Close() }()
	}

	blocks := make([]builtBlock, 0, len(cells))
	blockOf := make(map[h3.Cell]uint32, len(cells))
	var off uint64
	for i, c := range cells {
		raw := b.encodeRows(b.leaves[c])
		payload := raw
		if enc != nil {
			payload = enc.EncodeAll(raw, nil)
		}
		blocks = append(blocks, builtBlock{
			ref: blockRef{
				cell:   c,
				off:    int64(off),
				stored: uint32(len(payload)),
				raw:    uint32(len(raw)),
				rows:   uint32(len(b.leaves[c])),
				sum:    xxhash.Sum64(raw),
			},
			payload: payload,
		})
		blockOf[c] = uint32(i)
		off += uint64(len(payload))
	}

	tiers := make([]tier, 0, len(b.tiers))
	for _, res := range b.tiers {
		t := tier{res: res, cells: make(map[h3.Cell][]uint32)}
		for _, c := range cells {
			if res == b.opts.LeafRes {
				t.cells[c] = append(t.cells[c], blockOf[c])
				continue
			}
			// Descendants poke out of their H3 parent, so a block is listed
			// under every coarse cell its leaf may overlap.
			cp, err := b.mapper.CellCap(c)
			if err != nil {
				return 0, err
			}
			owners, err := b.mapper.CellsForCap(cp, res)
			if err != nil {
				return 0, err
			}
			for _, p := range owners {
				t.cells[p] = append(t.cells[p], blockOf[c])
			}
		}
		tiers = append(tiers, t)
	}

	meta := b.encodeMeta(blocks, tiers)

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], formatVersion)
	var flags uint16
	if b.opts.Compress {
		flags |= flagZstd
	}
	binary.LittleEndian.PutUint16(hdr[6:8], flags)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(meta)))
	binary.LittleEndian.PutUint64(hdr[12:20], xxhash.Sum64(meta))

	var n int64
	for _, p := range append([][]byte{hdr[:], meta}, payloads(blocks)...) {
		m, err := w.Write(p)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteFile writes the index to path, replacing any existing file.
func (b *Builder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := b.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func payloads(blocks []builtBlock) [][]byte {
	out := make([][]byte, len(blocks))
	for i, bl := range blocks {
		out[i] = bl.payload
	}
	return out
}

func (b *Builder) encodeRows(rows []Row) []byte {
	e := encoder{buf: make([]byte, 0, len(rows)*rowSize(b.cols.Len()))}
	for _, r := range rows {
		e.u64(r.ID)
		e.f64(r.Coord.RA().Radians())
		e.f64(r.Coord.Dec().Radians())
		e.u8(uint8(r.Flags))
		for _, v := range r.Values {
			e.f64(v)
		}
	}
	return e.buf
}

func (b *Builder) encodeMeta(blocks []builtBlock, tiers []tier) []byte {
	fp := b.footprint()

	var e encoder
	e.str(b.opts.ID)
	e.str(b.opts.Release)
	e.f64(fp.Center.RA().Radians())
	e.f64(fp.Center.Dec().Radians())
	e.f64(fp.Radius.Radians())
	e.u8(uint8(b.opts.LeafRes))

	e.u16(uint16(b.cols.Len()))
	for _, n := range b.cols.names {
		e.str(n)
	}

	e.u32(uint32(len(blocks)))
	for _, bl := range blocks {
		e.u64(uint64(bl.ref.cell))
		e.u64(uint64(bl.ref.off))
		e.u32(bl.ref.stored)
		e.u32(bl.ref.raw)
		e.u32(bl.ref.rows)
		e.u64(bl.ref.sum)
	}

	e.u8(uint8(len(tiers)))
	for _, t := range tiers {
		e.u8(uint8(t.res))
		keys := make([]h3.Cell, 0, len(t.cells))
		for c := range t.cells {
			keys = append(keys, c)
		}
		slices.Sort(keys)
		e.u32(uint32(len(keys)))
		for _, c := range keys {
			ids := t.cells[c]
			e.u64(uint64(c))
			e.u32(uint32(len(ids)))
			for _, id := range ids {
				e.u32(id)
			}
		}
	}
	return e.buf
}

// footprint is the smallest cap centred on the mean direction that holds
// every row.
func (b *Builder) footprint() sky.Cap {
	if b.nRows == 0 {
		return sky.Cap{Center: sky.NewCoord(0, 0)}
	}
	var sum [3]float64
	for _, rows := range b.leaves {
		for _, r := range rows {
			v := r.Coord.Vector()
			sum[0] += v[0]
			sum[1] += v[1]
			sum[2] += v[2]
		}
	}
	center := sky.FromVector(sum)
	// all points might cancel out (e.g. antipodal pairs)
	if sum == [3]float64{} {
		return sky.Cap{Center: sky.NewCoord(0, 0), Radius: sky.Angle(math.Pi)}
	}
	var r sky.Angle
	for _, rows := range b.leaves {
		for _, row := range rows {
			if s := center.Separation(row.Coord); s > r {
				r = s
			}
		}
	}
	return sky.Cap{Center: center, Radius: r + sky.Arcseconds(0.001)}
}
