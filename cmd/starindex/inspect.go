package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	h3mapper "github.com/mohammed-shakir/h3-refcat/internal/mapper/h3"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

type inspectOptions struct {
	at   string
	cell string
}

func newInspectCmd() *cobra.Command {
	var o inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect <file.h3sx>",
		Short: "Print the header, tiers and footprint of an index file",
		Example: `  starindex inspect west.h3sx
  starindex inspect west.h3sx --at 215.5,53
  starindex inspect west.h3sx --cell 872a1072bffffff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0], o)
		},
	}
	cmd.Flags().StringVar(&o.at, "at", "", "show the cells holding ra,dec (degrees) at every tier")
	cmd.Flags().StringVar(&o.cell, "cell", "", "show the enclosing cap of an H3 cell")
	return cmd
}

func runInspect(out io.Writer, path string, o inspectOptions) error {
	f, err := starindex.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "index\t%s\n", f.ID())
	fmt.Fprintf(tw, "release\t%s\n", f.Release())
	fmt.Fprintf(tw, "rows\t%d\n", f.NumRows())
	fmt.Fprintf(tw, "blocks\t%d\n", f.NumBlocks())
	fmt.Fprintf(tw, "compressed\t%t\n", f.Compressed())
	fmt.Fprintf(tw, "columns\t%s\n", strings.Join(f.Columns().Names(), ","))
	fp := f.Footprint()
	fmt.Fprintf(tw, "footprint\tra=%.6f dec=%.6f radius=%.6fdeg\n", fp.Center.RADeg(), fp.Center.DecDeg(), fp.Radius.Degrees())
	cells := f.TierCells()
	for _, res := range f.Tiers() {
		leaf := ""
		if res == f.LeafRes() {
			leaf = " (leaf)"
		}
		fmt.Fprintf(tw, "tier %d%s\t%d cells\n", res, leaf, cells[res])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	m := h3mapper.New()
	if o.at != "" {
		c, err := parseCoord(o.at)
		if err != nil {
			return err
		}
		leaf, err := m.CellForCoord(c, f.LeafRes())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cells at %s:\n", c)
		for _, res := range f.Tiers() {
			p, err := m.ToParent(leaf, res)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  res %d\t%s\n", res, p)
		}
	}
	if o.cell != "" {
		c, err := h3mapper.ParseCell(o.cell)
		if err != nil {
			return err
		}
		cp, err := m.CellCap(c)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cell %s res %d: %s\n", c, c.Resolution(), cp)
	}
	return nil
}

func parseCoord(s string) (sky.Coord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return sky.Coord{}, fmt.Errorf("expected ra,dec in degrees, got %q", s)
	}
	ra, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return sky.Coord{}, fmt.Errorf("ra: %w", err)
	}
	dec, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return sky.Coord{}, fmt.Errorf("dec: %w", err)
	}
	c := sky.NewCoord(ra, dec)
	if !c.IsValid() {
		return sky.Coord{}, fmt.Errorf("invalid coordinate %q", s)
	}
	return c, nil
}
