package starindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/h3-refcat/internal/cache/keys"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	h3mapper "github.com/mohammed-shakir/h3-refcat/internal/mapper/h3"
)

// BlockCache holds decoded block payloads keyed by keys.Block. Misses and
// backend failures both report ok=false.
type BlockCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, raw []byte)
}

// Prefetcher is an optional BlockCache extension that loads a batch of
// keys ahead of the Gets of one query.
type Prefetcher interface {
	Prefetch(ctx context.Context, keys []string)
}

type blockRef struct {
	cell   h3.Cell
	off    int64
	stored uint32
	raw    uint32
	rows   uint32
	sum    uint64
}

type tier struct {
	res   int
	cells map[h3.Cell][]uint32
}

// File is an open star index. It is safe for concurrent queries.
type File struct {
	path   string
	r      io.ReaderAt
	closer io.Closer

	id         string
	release    string
	footprint  sky.Cap
	leafRes    int
	columns    *Columns
	compressed bool
	dataOff    int64
	blocks     []blockRef
	tiers      []tier // coarse to fine
	nRows      int

	mapper *h3mapper.Mapper
	cache  BlockCache
	dec    *zstd.Decoder
}

type Option func(*File)

func WithCache(c BlockCache) Option { return func(f *File) { f.cache = c } }

func WithMapper(m *h3mapper.Mapper) Option {
	return func(f *File) {
		if m != nil {
			f.mapper = m
		}
	}
}

// Open opens and validates the index at path. Only the header and directory
// are read; blocks are read on demand.
func Open(path string, opts ...Option) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrUnavailable, path, err)
	}
	f, err := NewReader(fh, st.Size(), opts...)
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f.path = path
	f.closer = fh
	return f, nil
}

// NewReader reads an index from r, which must hold size bytes.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*File, error) {
	f := &File{r: r, mapper: h3mapper.New()}
	for _, o := range opts {
		o(f)
	}

	var hdr [headerSize]byte
	if err := readFull(r, hdr[:], 0); err != nil {
		if size < headerSize {
			return nil, corruptf("file too short (%d bytes)", size)
		}
		return nil, fmt.Errorf("%w: read header: %w", ErrUnavailable, err)
	}
	if string(hdr[:4]) != magic {
		return nil, corruptf("bad magic %q", hdr[:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != formatVersion {
		return nil, corruptf("unsupported version %d", v)
	}
	flags := binary.LittleEndian.Uint16(hdr[6:8])
	metaLen := int64(binary.LittleEndian.Uint32(hdr[8:12]))
	metaSum := binary.LittleEndian.Uint64(hdr[12:20])
	if headerSize+metaLen > size {
		return nil, corruptf("meta length %d exceeds file size %d", metaLen, size)
	}

	meta := make([]byte, metaLen)
	if err := readFull(r, meta, headerSize); err != nil {
		return nil, fmt.Errorf("%w: read meta: %w", ErrUnavailable, err)
	}
	if xxhash.Sum64(meta) != metaSum {
		return nil, corruptf("meta checksum mismatch")
	}

	f.compressed = flags&flagZstd != 0
	f.dataOff = headerSize + metaLen
	if err := f.decodeMeta(meta, size-f.dataOff); err != nil {
		return nil, err
	}
	if f.compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		f.dec = dec
	}
	return f, nil
}

func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (f *File) decodeMeta(meta []byte, dataLen int64) error {
	d := &decoder{b: meta}
	f.id = d.str()
	f.release = d.str()
	ra, dec, radius := d.f64(), d.f64(), d.f64()
	f.leafRes = int(d.u8())

	nCols := int(d.u16())
	names := make([]string, 0, nCols)
	for i := 0; i < nCols && d.err == nil; i++ {
		names = append(names, d.str())
	}

	nBlocks := int(d.u32())
	if d.err == nil && nBlocks > len(meta) {
		return corruptf("implausible block count %d", nBlocks)
	}
	f.blocks = make([]blockRef, 0, nBlocks)
	for i := 0; i < nBlocks && d.err == nil; i++ {
		b := blockRef{
			cell:   h3.Cell(d.u64()),
			off:    int64(d.u64()),
			stored: d.u32(),
			raw:    d.u32(),
			rows:   d.u32(),
			sum:    d.u64(),
		}
		f.blocks = append(f.blocks, b)
	}

	nTiers := int(d.u8())
	for i := 0; i < nTiers && d.err == nil; i++ {
		t := tier{res: int(d.u8())}
		nCells := int(d.u32())
		if d.err == nil && nCells > len(meta) {
			return corruptf("implausible cell count %d", nCells)
		}
		t.cells = make(map[h3.Cell][]uint32, nCells)
		for j := 0; j < nCells && d.err == nil; j++ {
			c := h3.Cell(d.u64())
			n := int(d.u32())
			if d.err == nil && n > nBlocks {
				return corruptf("tier %d cell %s lists %d blocks", t.res, c, n)
			}
			ids := make([]uint32, 0, n)
			for k := 0; k < n && d.err == nil; k++ {
				ids = append(ids, d.u32())
			}
			t.cells[c] = ids
		}
		f.tiers = append(f.tiers, t)
	}
	if d.err != nil {
		return d.err
	}
	if d.off != len(meta) {
		return corruptf("%d trailing meta bytes", len(meta)-d.off)
	}

	// validation
	if f.id == "" {
		return corruptf("empty index id")
	}
	if f.leafRes > 15 {
		return corruptf("invalid leaf resolution %d", f.leafRes)
	}
	if !validPosition(ra, dec) || !(radius >= 0) {
		return corruptf("invalid footprint (%g, %g, r=%g)", ra, dec, radius)
	}
	f.footprint = sky.Cap{Center: sky.FromRadians(sky.Angle(ra), sky.Angle(dec)), Radius: sky.Angle(radius)}

	cols, err := NewColumns(names)
	if err != nil {
		return corruptf("columns: %v", err)
	}
	f.columns = cols

	rs := int64(rowSize(cols.Len()))
	for i, b := range f.blocks {
		if b.off < 0 || b.off+int64(b.stored) > dataLen {
			return corruptf("block %d [%d,+%d) outside data section of %d bytes", i, b.off, b.stored, dataLen)
		}
		if int64(b.raw) != int64(b.rows)*rs {
			return corruptf("block %d raw size %d does not hold %d rows", i, b.raw, b.rows)
		}
		if !f.compressed && b.stored != b.raw {
			return corruptf("block %d stored size %d != raw size %d", i, b.stored, b.raw)
		}
		f.nRows += int(b.rows)
	}
	hasLeaf := false
	for i, t := range f.tiers {
		if t.res > f.leafRes || (i > 0 && t.res <= f.tiers[i-1].res) {
			return corruptf("tier resolutions out of order")
		}
		if t.res == f.leafRes {
			hasLeaf = true
		}
		for c, ids := range t.cells {
			for _, id := range ids {
				if int(id) >= len(f.blocks) {
					return corruptf("tier %d cell %s references block %d of %d", t.res, c, id, len(f.blocks))
				}
			}
		}
	}
	if !hasLeaf {
		return corruptf("leaf tier %d missing", f.leafRes)
	}
	return nil
}

func (f *File) Close() error {
	if f.dec != nil {
		f.dec.Close()
	}
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

func (f *File) Path() string       { return f.path }
func (f *File) ID() string         { return f.id }
func (f *File) Release() string    { return f.release }
func (f *File) Footprint() sky.Cap { return f.footprint }
func (f *File) LeafRes() int       { return f.leafRes }
func (f *File) Columns() *Columns  { return f.columns }
func (f *File) Compressed() bool   { return f.compressed }
func (f *File) NumRows() int       { return f.nRows }
func (f *File) NumBlocks() int     { return len(f.blocks) }

// Tiers returns the tier resolutions, coarse to fine.
func (f *File) Tiers() []int {
	out := make([]int, len(f.tiers))
	for i, t := range f.tiers {
		out[i] = t.res
	}
	return out
}

// TierCells returns the number of directory cells at each tier.
func (f *File) TierCells() map[int]int {
	out := make(map[int]int, len(f.tiers))
	for _, t := range f.tiers {
		out[t.res] = len(t.cells)
	}
	return out
}

// ChooseTier picks the finest tier whose cells are still at least as large
// as radius. When the radius exceeds every cell it returns the coarsest
// tier, not the finest: the coarse walk visits far fewer cells and the
// rows found are the same.
func (f *File) ChooseTier(center sky.Coord, radius sky.Angle) (int, error) {
	best := -1
	for i, t := range f.tiers {
		size, err := f.mapper.CellRadius(center, t.res)
		if err != nil {
			return 0, err
		}
		if size >= radius {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return f.tiers[best].res, nil
}

func (f *File) tierFor(res int) *tier {
	for i := range f.tiers {
		if f.tiers[i].res == res {
			return &f.tiers[i]
		}
	}
	return nil
}

// Query yields every row within radius of center. The sequence is lazy and
// can be ranged over more than once; each pass re-reads the blocks. Errors
// end the sequence.
func (f *File) Query(ctx context.Context, center sky.Coord, radius sky.Angle) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if radius < 0 || math.IsNaN(float64(radius)) {
			yield(Row{}, fmt.Errorf("index %s: negative radius %s", f.id, radius))
			return
		}
		q := sky.Cap{Center: center, Radius: radius}
		if !q.Intersects(f.footprint) {
			return
		}
		res, err := f.ChooseTier(center, radius)
		if err != nil {
			yield(Row{}, fmt.Errorf("index %s: choose tier: %w", f.id, err))
			return
		}
		ids, err := f.blocksFor(q, res)
		if err != nil {
			yield(Row{}, fmt.Errorf("index %s: %w", f.id, err))
			return
		}

		if p, ok := f.cache.(Prefetcher); ok && len(ids) > 1 {
			ks := make([]string, len(ids))
			for i, id := range ids {
				ks[i] = keys.Block(f.id, id, f.blocks[id].sum)
			}
			p.Prefetch(ctx, ks)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}
			raw, err := f.readBlock(ctx, id)
			if err != nil {
				yield(Row{}, fmt.Errorf("index %s block %d: %w", f.id, id, err))
				return
			}
			rows, err := f.decodeRows(raw, f.blocks[id].rows)
			if err != nil {
				yield(Row{}, fmt.Errorf("index %s block %d: %w", f.id, id, err))
				return
			}
			for _, r := range rows {
				if !q.Contains(r.Coord) {
					continue
				}
				r.Res = res
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}

// blocksFor returns the ascending, unique block ids under the cells that
// cover q at res. When q covers the whole footprint, or is too large to
// cover cell by cell, every block is returned.
func (f *File) blocksFor(q sky.Cap, res int) ([]uint32, error) {
	if q.Covers(f.footprint) {
		return f.allBlocks(), nil
	}
	t := f.tierFor(res)
	if t == nil {
		return nil, fmt.Errorf("no tier at resolution %d", res)
	}
	cells, err := f.mapper.CellsForCap(q, res)
	if errors.Is(err, h3mapper.ErrTooManyCells) {
		return f.allBlocks(), nil
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[uint32]struct{})
	var ids []uint32
	for _, c := range cells {
		for _, id := range t.cells[c] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *File) allBlocks() []uint32 {
	ids := make([]uint32, len(f.blocks))
	for i := range ids {
		ids[i] = uint32(i)
	}
	return ids
}

func (f *File) readBlock(ctx context.Context, id uint32) ([]byte, error) {
	b := f.blocks[id]
	key := keys.Block(f.id, id, b.sum)
	if f.cache != nil {
		if raw, ok := f.cache.Get(ctx, key); ok && uint32(len(raw)) == b.raw && xxhash.Sum64(raw) == b.sum {
			return raw, nil
		}
	}

	buf := make([]byte, b.stored)
	if err := readFull(f.r, buf, f.dataOff+b.off); err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrUnavailable, err)
	}
	raw := buf
	if f.compressed {
		var err error
		raw, err = f.dec.DecodeAll(buf, make([]byte, 0, b.raw))
		if err != nil {
			return nil, corruptf("zstd: %v", err)
		}
	}
	if uint32(len(raw)) != b.raw {
		return nil, corruptf("decoded %d bytes, want %d", len(raw), b.raw)
	}
	if xxhash.Sum64(raw) != b.sum {
		return nil, corruptf("block checksum mismatch")
	}
	if f.cache != nil {
		f.cache.Put(ctx, key, raw)
	}
	return raw, nil
}

// Block is one verified, decoded block payload and its cache key.
type Block struct {
	Key string
	Raw []byte
}

// Blocks yields every block of the file in id order, e.g. to warm a shared
// cache. Errors end the sequence.
func (f *File) Blocks(ctx context.Context) iter.Seq2[Block, error] {
	return func(yield func(Block, error) bool) {
		for i := range f.blocks {
			if err := ctx.Err(); err != nil {
				yield(Block{}, err)
				return
			}
			id := uint32(i)
			raw, err := f.readBlock(ctx, id)
			if err != nil {
				yield(Block{}, fmt.Errorf("index %s block %d: %w", f.id, id, err))
				return
			}
			if !yield(Block{Key: keys.Block(f.id, id, f.blocks[id].sum), Raw: raw}, nil) {
				return
			}
		}
	}
}

func (f *File) decodeRows(raw []byte, n uint32) ([]Row, error) {
	nc := f.columns.Len()
	rs := rowSize(nc)
	if len(raw) != int(n)*rs {
		return nil, corruptf("block holds %d bytes, want %d rows of %d", len(raw), n, rs)
	}
	out := make([]Row, 0, n)
	for i := 0; i < int(n); i++ {
		p := raw[i*rs : (i+1)*rs]
		ra := math.Float64frombits(binary.LittleEndian.Uint64(p[8:16]))
		dec := math.Float64frombits(binary.LittleEndian.Uint64(p[16:24]))
		if !validPosition(ra, dec) {
			return nil, corruptf("row %d has invalid position (%g, %g)", i, ra, dec)
		}
		vals := make([]float64, nc)
		for j := range vals {
			off := 25 + 8*j
			vals[j] = math.Float64frombits(binary.LittleEndian.Uint64(p[off : off+8]))
		}
		out = append(out, Row{
			ID:     binary.LittleEndian.Uint64(p[0:8]),
			Coord:  sky.FromRadians(sky.Angle(ra), sky.Angle(dec)),
			Flags:  Flags(p[24]),
			Values: vals,
			Index:  f.id,
			cols:   f.columns,
		})
	}
	return out, nil
}

func validPosition(ra, dec float64) bool {
	return ra >= 0 && ra < 2*math.Pi && dec >= -math.Pi/2 && dec <= math.Pi/2
}
