package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/h3-refcat/internal/cache/keys"
	"github.com/mohammed-shakir/h3-refcat/internal/cache/redisstore"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

type buildOptions struct {
	id       string
	release  string
	leafRes  int
	tiers    []int
	compress bool
	output   string
	redis    string
	ttl      time.Duration
}

func newBuildCmd() *cobra.Command {
	var o buildOptions
	cmd := &cobra.Command{
		Use:   "build <input.csv|->",
		Short: "Build an index file from a CSV star table",
		Long: `Build an index file from a CSV table with a header row. The id, ra and
dec columns are required (ra/dec in degrees); an optional flags column
holds the row flags and every other column is stored as a value column.`,
		Example: `  starindex build --id west --release dr1 --tiers 3,5 -o west.h3sx west.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), cmd.OutOrStdout(), args[0], o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.id, "id", "", "index id (default: output file name without extension)")
	f.StringVar(&o.release, "release", "", "data release the index belongs to")
	f.IntVar(&o.leafRes, "leaf-res", 7, "H3 resolution of the blocks")
	f.IntSliceVar(&o.tiers, "tiers", []int{3, 5}, "coarser resolutions that get a directory")
	f.BoolVar(&o.compress, "compress", false, "zstd-compress blocks")
	f.StringVarP(&o.output, "output", "o", "", "output index file")
	f.StringVar(&o.redis, "redis", "", "replace the cached blocks of this index in redis after writing")
	f.DurationVar(&o.ttl, "ttl", time.Hour, "expiry of the blocks written to redis")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runBuild(ctx context.Context, out io.Writer, input string, o buildOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.id == "" {
		o.id = strings.TrimSuffix(filepath.Base(o.output), filepath.Ext(o.output))
	}

	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(filepath.Clean(input))
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	names, rows, err := readRows(r)
	if err != nil {
		return err
	}
	b, err := starindex.NewBuilder(starindex.BuildOptions{
		ID:       o.id,
		Release:  o.release,
		Columns:  names,
		LeafRes:  o.leafRes,
		Tiers:    o.tiers,
		Compress: o.compress,
	})
	if err != nil {
		return err
	}
	for row, err := range rows {
		if err != nil {
			return err
		}
		if err := b.Add(row); err != nil {
			return err
		}
	}
	if err := b.WriteFile(o.output); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s: index %q, %d rows, %d columns\n", o.output, o.id, b.Len(), len(names))

	if o.redis == "" {
		return nil
	}
	return refreshRedis(ctx, out, o)
}

// warmBatch is the number of blocks written per pipeline.
const warmBatch = 256

// refreshRedis drops the cached blocks of a previous build of the index and
// writes the blocks of the new file.
func refreshRedis(ctx context.Context, out io.Writer, o buildOptions) error {
	rctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	rc, err := redisstore.New(rctx, o.redis)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	n, err := rc.DelPrefix(rctx, keys.Prefix(o.id))
	if err != nil {
		return fmt.Errorf("purge cached blocks: %w", err)
	}

	f, err := starindex.Open(o.output)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	batch := make(map[string][]byte, warmBatch)
	warmed := 0
	for blk, err := range f.Blocks(rctx) {
		if err != nil {
			return err
		}
		batch[blk.Key] = blk.Raw
		if len(batch) == warmBatch {
			if err := rc.SetMany(rctx, batch, o.ttl); err != nil {
				return err
			}
			warmed += len(batch)
			clear(batch)
		}
	}
	if err := rc.SetMany(rctx, batch, o.ttl); err != nil {
		return err
	}
	warmed += len(batch)
	fmt.Fprintf(out, "redis: purged %d and cached %d blocks of %q\n", n, warmed, o.id)
	return nil
}
