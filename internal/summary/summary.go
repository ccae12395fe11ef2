// Package summary reduces the displacement table to per-track statistics
// and a balanced, binned sample of tracks.
package summary

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cell-tracker/internal/displacement"
	"cell-tracker/internal/table"
)

// Column names added by this package.
const (
	ColAvgDisplacement = "avg_displacement"
	ColBin             = "bin"
)

// KeyColumns identify a track.
var KeyColumns = []string{"experiment", "species", "pool_ID", "seq_number"}

type trackKey [4]string

func keyer(t *table.Table, names []string) (func(row []string) trackKey, error) {
	cols, err := t.Require(names...)
	if err != nil {
		return nil, err
	}
	return func(row []string) trackKey {
		var k trackKey
		for i, c := range cols {
			k[i] = row[c]
		}
		return k
	}, nil
}

func withColumns(t *table.Table, extra ...string) *table.Table {
	return table.New(append(slices.Clone(t.Header), extra...)...)
}

// MeanPerTrack keeps the rows of allowed experiments (all when allowed is
// empty) and appends the mean absolute angular displacement of each row's
// track. Tracks without any angle are dropped.
func MeanPerTrack(t *table.Table, allowed []string) (*table.Table, error) {
	key, err := keyer(t, KeyColumns)
	if err != nil {
		return nil, err
	}
	cols, err := t.Require("experiment", "angular_displacement")
	if err != nil {
		return nil, err
	}
	expCol, angleCol := cols[0], cols[1]

	var kept [][]string
	angles := make(map[trackKey][]float64)
	for n, row := range t.Rows {
		if len(allowed) > 0 && !slices.Contains(allowed, row[expCol]) {
			continue
		}
		kept = append(kept, row)
		a, err := displacement.ParseNullable(row[angleCol])
		if err != nil {
			return nil, fmt.Errorf("row %d: angular_displacement: %w", n+2, err)
		}
		if a != nil {
			angles[key(row)] = append(angles[key(row)], math.Abs(*a))
		}
	}

	out := withColumns(t, ColAvgDisplacement)
	for _, row := range kept {
		abs, ok := angles[key(row)]
		if !ok {
			continue
		}
		mean := stat.Mean(abs, nil)
		out.Append(append(slices.Clone(row), strconv.FormatFloat(mean, 'f', -1, 64)))
	}
	return out, nil
}

// FirstFrames keeps one row per track: the one with the lowest seq_frame.
// Track order follows first appearance.
func FirstFrames(t *table.Table) (*table.Table, error) {
	key, err := keyer(t, KeyColumns)
	if err != nil {
		return nil, err
	}
	cols, err := t.Require("seq_frame")
	if err != nil {
		return nil, err
	}

	type best struct {
		frame int
		row   []string
	}
	var order []trackKey
	first := make(map[trackKey]best)
	for n, row := range t.Rows {
		f, err := strconv.Atoi(row[cols[0]])
		if err != nil {
			return nil, fmt.Errorf("row %d: seq_frame: %w", n+2, err)
		}
		k := key(row)
		b, seen := first[k]
		if !seen {
			order = append(order, k)
		}
		if !seen || f < b.frame {
			first[k] = best{frame: f, row: row}
		}
	}

	out := withColumns(t)
	for _, k := range order {
		out.Append(first[k].row)
	}
	return out, nil
}

// SampleBalanced draws, without replacement, the same number of rows from
// every (experiment, species) group: the size of the smallest group.
// Groups are emitted in sorted order so a fixed rng gives a fixed result.
func SampleBalanced(t *table.Table, rng *rand.Rand) (*table.Table, error) {
	cols, err := t.Require("experiment", "species")
	if err != nil {
		return nil, err
	}

	groups := make(map[[2]string][][]string)
	for _, row := range t.Rows {
		g := [2]string{row[cols[0]], row[cols[1]]}
		groups[g] = append(groups[g], row)
	}
	out := withColumns(t)
	if len(groups) == 0 {
		return out, nil
	}

	names := make([][2]string, 0, len(groups))
	size := math.MaxInt
	for g, rows := range groups {
		names = append(names, g)
		size = min(size, len(rows))
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i][0] != names[j][0] {
			return names[i][0] < names[j][0]
		}
		return names[i][1] < names[j][1]
	})

	for _, g := range names {
		rows := groups[g]
		for _, i := range rng.Perm(len(rows))[:size] {
			out.Append(rows[i])
		}
	}
	return out, nil
}

// BinEdges returns n+1 evenly spaced edges over [lo, hi].
func BinEdges(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n+1), lo, hi)
}

// BinOf returns the 1-based bin of v. Values at or below the first edge
// fall in bin 1; values at or above the last edge fall in the last bin.
func BinOf(v float64, edges []float64) int {
	if v <= edges[0] {
		return 1
	}
	for i := 0; i < len(edges)-1; i++ {
		if edges[i] <= v && v < edges[i+1] {
			return i + 1
		}
	}
	return len(edges) - 1
}

// Bin appends a bin column assigning each row's avg_displacement to one
// of n equal-width bins spanning the observed range.
func Bin(t *table.Table, n int) (*table.Table, error) {
	if n < 1 {
		return nil, fmt.Errorf("bin count must be >= 1, got %d", n)
	}
	cols, err := t.Require(ColAvgDisplacement)
	if err != nil {
		return nil, err
	}

	values := make([]float64, t.Len())
	for i, row := range t.Rows {
		v, err := strconv.ParseFloat(row[cols[0]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i+2, ColAvgDisplacement, err)
		}
		values[i] = v
	}

	out := withColumns(t, ColBin)
	if len(values) == 0 {
		return out, nil
	}
	edges := BinEdges(floats.Min(values), floats.Max(values), n)
	for i, row := range t.Rows {
		out.Append(append(slices.Clone(row), strconv.Itoa(BinOf(values[i], edges))))
	}
	return out, nil
}

// Merge inner-joins the binned track sample with the displacement table
// on the track key. Each output row is the track key, avg_displacement and
// bin followed by the remaining displacement columns, in binned-row order
// and then displacement-row order.
func Merge(binned, disp *table.Table) (*table.Table, error) {
	left := append(slices.Clone(KeyColumns), ColAvgDisplacement, ColBin)
	lcols, err := binned.Require(left...)
	if err != nil {
		return nil, err
	}
	lkey, _ := keyer(binned, KeyColumns)
	rkey, err := keyer(disp, KeyColumns)
	if err != nil {
		return nil, err
	}

	var rest []int
	header := slices.Clone(left)
	for i, h := range disp.Header {
		if !slices.Contains(KeyColumns, h) {
			rest = append(rest, i)
			header = append(header, h)
		}
	}

	byKey := make(map[trackKey][][]string)
	for _, row := range disp.Rows {
		k := rkey(row)
		byKey[k] = append(byKey[k], row)
	}

	out := table.New(header...)
	for _, lrow := range binned.Rows {
		for _, rrow := range byKey[lkey(lrow)] {
			rec := make([]string, 0, len(header))
			for _, c := range lcols {
				rec = append(rec, lrow[c])
			}
			for _, c := range rest {
				rec = append(rec, rrow[c])
			}
			out.Append(rec)
		}
	}
	return out, nil
}
