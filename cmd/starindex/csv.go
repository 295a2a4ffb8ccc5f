package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
	"github.com/mohammed-shakir/h3-refcat/internal/starindex"
)

// csvLayout locates the fixed columns of an input table. Every other
// column becomes a native value column, in header order.
type csvLayout struct {
	id, ra, dec, flags int
	values             []int
	names              []string
}

func parseHeader(header []string) (csvLayout, error) {
	l := csvLayout{id: -1, ra: -1, dec: -1, flags: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			l.id = i
		case "ra":
			l.ra = i
		case "dec":
			l.dec = i
		case "flags":
			l.flags = i
		default:
			l.values = append(l.values, i)
			l.names = append(l.names, strings.TrimSpace(h))
		}
	}
	if l.id < 0 || l.ra < 0 || l.dec < 0 {
		return csvLayout{}, errors.New("csv header needs id, ra and dec columns")
	}
	return l, nil
}

// readRows streams rows of a CSV table with ra/dec in degrees. Empty
// value cells read as NaN.
func readRows(r io.Reader) (names []string, rows iter.Seq2[starindex.Row, error], err error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	l, err := parseHeader(header)
	if err != nil {
		return nil, nil, err
	}
	cr.FieldsPerRecord = len(header)

	rows = func(yield func(starindex.Row, error) bool) {
		for line := 2; ; line++ {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(starindex.Row{}, err)
				return
			}
			row, err := l.row(rec)
			if err != nil {
				yield(starindex.Row{}, fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
	return l.names, rows, nil
}

func (l csvLayout) row(rec []string) (starindex.Row, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(rec[l.id]), 10, 64)
	if err != nil {
		return starindex.Row{}, fmt.Errorf("id: %w", err)
	}
	ra, err := strconv.ParseFloat(strings.TrimSpace(rec[l.ra]), 64)
	if err != nil {
		return starindex.Row{}, fmt.Errorf("ra: %w", err)
	}
	dec, err := strconv.ParseFloat(strings.TrimSpace(rec[l.dec]), 64)
	if err != nil {
		return starindex.Row{}, fmt.Errorf("dec: %w", err)
	}
	var flags starindex.Flags
	if l.flags >= 0 {
		if s := strings.TrimSpace(rec[l.flags]); s != "" {
			f, err := strconv.ParseUint(s, 10, 8)
			if err != nil {
				return starindex.Row{}, fmt.Errorf("flags: %w", err)
			}
			flags = starindex.Flags(f)
		}
	}
	vals := make([]float64, len(l.values))
	for j, i := range l.values {
		s := strings.TrimSpace(rec[i])
		if s == "" {
			vals[j] = math.NaN()
			continue
		}
		if vals[j], err = strconv.ParseFloat(s, 64); err != nil {
			return starindex.Row{}, fmt.Errorf("%s: %w", l.names[j], err)
		}
	}
	return starindex.Row{ID: id, Coord: sky.NewCoord(ra, dec), Flags: flags, Values: vals}, nil
}
