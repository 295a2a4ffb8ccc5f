package blockcache

import (
	"context"
	"slices"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/h3-refcat/internal/cache/redisstore"
	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex/starindextest"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redisstore.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestLocalOnly_EvictsLeastRecent(t *testing.T) {
	c, err := New(Config{Size: 2}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	c.Put(ctx, "a", []byte("1"))
	c.Put(ctx, "b", []byte("2"))
	if _, ok := c.Get(ctx, "a"); !ok {
		t.Fatalf("a missing")
	}
	c.Put(ctx, "c", []byte("3"))

	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get(ctx, "a"); !ok || string(v) != "1" {
		t.Fatalf("a=%q ok=%v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d want 2", c.Len())
	}
}

func TestRemote_FillsAndPromotes(t *testing.T) {
	mr, rc := newRedis(t)
	ctx := context.Background()

	writer, err := New(Config{Size: 4, TTL: time.Minute}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	writer.Put(ctx, "blk:x", []byte("payload"))
	if !mr.Exists("blk:x") {
		t.Fatalf("write-through did not reach redis")
	}
	if ttl := mr.TTL("blk:x"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}

	reader, err := New(Config{Size: 4}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, ok := reader.Get(ctx, "blk:x")
	if !ok || string(v) != "payload" {
		t.Fatalf("remote get=%q ok=%v", v, ok)
	}
	mr.Del("blk:x")
	if _, ok := reader.Get(ctx, "blk:x"); !ok {
		t.Fatalf("expected promoted entry to be served locally")
	}
}

func TestRemote_OutageDegradesToMiss(t *testing.T) {
	mr, rc := newRedis(t)
	c, err := New(Config{Size: 4, OpTimeout: 50 * time.Millisecond}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mr.Close()

	ctx := context.Background()
	if _, ok := c.Get(ctx, "nope"); ok {
		t.Fatalf("expected miss with redis down")
	}
	c.Put(ctx, "k", []byte("v"))
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("local level should still serve: %q ok=%v", v, ok)
	}
}

func TestSharedAcrossReaders(t *testing.T) {
	_, rc := newRedis(t)
	field := sky.Cap{Center: sky.NewCoord(215.5, 53), Radius: sky.Degrees(0.2)}
	rows := starindextest.Field(3, 1, 800, field)
	path := starindextest.Write(t, t.TempDir(), "shared", rows, starindextest.Options{Compress: true})

	query := func(c *Cache) []uint64 {
		f, err := starindex.Open(path, starindex.WithCache(c))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer func() { _ = f.Close() }()
		var ids []uint64
		for r, err := range f.Query(context.Background(), field.Center, sky.Degrees(0.1)) {
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			ids = append(ids, r.ID)
		}
		slices.Sort(ids)
		return ids
	}

	first, err := New(Config{Size: 64}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := query(first)
	if first.Len() == 0 {
		t.Fatalf("no blocks cached")
	}

	// a second process starts cold and is filled from redis
	second, err := New(Config{Size: 64}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := query(second); !slices.Equal(got, want) {
		t.Fatalf("redis-backed query returned %d rows want %d", len(got), len(want))
	}
	if second.Len() != first.Len() {
		t.Fatalf("promoted %d blocks want %d", second.Len(), first.Len())
	}
}

func TestPrefetch_FillsLocalLevelInOneRoundTrip(t *testing.T) {
	mr, rc := newRedis(t)
	ctx := context.Background()

	writer, err := New(Config{Size: 8}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, k := range []string{"blk:a", "blk:b", "blk:c"} {
		writer.Put(ctx, k, []byte(k))
	}

	reader, err := New(Config{Size: 8}, rc, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reader.Prefetch(ctx, []string{"blk:a", "blk:b", "blk:c", "blk:absent"})
	if reader.Len() != 3 {
		t.Fatalf("prefetched %d blocks want 3", reader.Len())
	}

	mr.Close()
	for _, k := range []string{"blk:a", "blk:b", "blk:c"} {
		if v, ok := reader.Get(ctx, k); !ok || string(v) != k {
			t.Fatalf("%s not served locally after prefetch: %q ok=%v", k, v, ok)
		}
	}
	// remote down: prefetch is a no-op, not a failure
	reader.Prefetch(ctx, []string{"blk:x", "blk:y"})
	if reader.Len() != 3 {
		t.Fatalf("len=%d after failed prefetch", reader.Len())
	}
}
