package main

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

type queryOptions struct {
	at     string
	radius float64
}

func newQueryCmd() *cobra.Command {
	var o queryOptions
	cmd := &cobra.Command{
		Use:     "query <file.h3sx>",
		Short:   "Print the rows within a sky circle as CSV",
		Example: `  starindex query west.h3sx --at 215.5,53 --radius 0.05`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), args[0], o)
		},
	}
	cmd.Flags().StringVar(&o.at, "at", "", "circle center as ra,dec in degrees")
	cmd.Flags().Float64Var(&o.radius, "radius", 0.1, "circle radius in degrees")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, path string, o queryOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	center, err := parseCoord(o.at)
	if err != nil {
		return err
	}
	f, err := starindex.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(out)
	header := append([]string{"id", "ra", "dec", "flags"}, f.Columns().Names()...)
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for row, err := range f.Query(ctx, center, sky.Degrees(o.radius)) {
		if err != nil {
			return err
		}
		rec = rec[:0]
		rec = append(rec,
			strconv.FormatUint(row.ID, 10),
			strconv.FormatFloat(row.Coord.RADeg(), 'f', -1, 64),
			strconv.FormatFloat(row.Coord.DecDeg(), 'f', -1, 64),
			strconv.Itoa(int(row.Flags)),
		)
		for _, v := range row.Values {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
