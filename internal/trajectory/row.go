package trajectory

import (
	"fmt"
	"sort"
	"strconv"

	"cell-tracker/internal/displacement"
	"cell-tracker/internal/sequence"
	"cell-tracker/internal/table"
	"cell-tracker/pkg/geometry"
)

// Header is the column layout of the per-object table.
var Header = []string{
	"experiment", "species", "pool_ID", "file_name", "seq_number", "seq_frame",
	"object_number", "object_area", "centroid_x", "centroid_y", "file_path", "angle",
}

// ObjectRow is one detected object in one frame.
type ObjectRow struct {
	Frame    sequence.FrameKey
	Object   int // 1-based
	Area     float64
	Centroid geometry.PointInt
	Angle    *float64 // motion angle in degrees; set only on the anchor object
}

// Row renders r in Header order.
func (r ObjectRow) Row() []string {
	return []string{
		r.Frame.Experiment,
		r.Frame.Species,
		r.Frame.PoolID,
		r.Frame.FileName,
		strconv.Itoa(r.Frame.Seq),
		strconv.Itoa(r.Frame.Frame),
		strconv.Itoa(r.Object),
		strconv.FormatFloat(r.Area, 'f', -1, 64),
		strconv.Itoa(r.Centroid.X),
		strconv.Itoa(r.Centroid.Y),
		r.Frame.Path,
		displacement.FormatNullable(r.Angle),
	}
}

// SortRows orders rows by file path, then object number.
func SortRows(rows []ObjectRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Frame.Path != rows[j].Frame.Path {
			return rows[i].Frame.Path < rows[j].Frame.Path
		}
		return rows[i].Object < rows[j].Object
	})
}

// ToTable renders rows into a new table.
func ToTable(rows []ObjectRow) *table.Table {
	t := table.New(Header...)
	for _, r := range rows {
		t.Append(r.Row())
	}
	return t
}

// FromTable parses a per-object table back into rows.
func FromTable(t *table.Table) ([]ObjectRow, error) {
	cols, err := t.Require(Header...)
	if err != nil {
		return nil, err
	}
	const (
		cExp = iota
		cSpecies
		cPool
		cFile
		cSeq
		cFrame
		cObject
		cArea
		cX
		cY
		cPath
		cAngle
	)

	rows := make([]ObjectRow, 0, t.Len())
	for n, rec := range t.Rows {
		field := func(c int) string { return rec[cols[c]] }
		var (
			r    ObjectRow
			errs []error
		)
		atoi := func(c int) int {
			v, err := strconv.Atoi(field(c))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", Header[c], err))
			}
			return v
		}

		r.Frame = sequence.FrameKey{
			Key: sequence.Key{
				Experiment: field(cExp),
				Species:    field(cSpecies),
				PoolID:     field(cPool),
				Seq:        atoi(cSeq),
			},
			Frame:    atoi(cFrame),
			FileName: field(cFile),
			Path:     field(cPath),
		}
		r.Object = atoi(cObject)
		r.Centroid = geometry.PointInt{X: atoi(cX), Y: atoi(cY)}
		area, err := strconv.ParseFloat(field(cArea), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("object_area: %w", err))
		}
		r.Area = area
		if r.Angle, err = displacement.ParseNullable(field(cAngle)); err != nil {
			errs = append(errs, fmt.Errorf("angle: %w", err))
		}
		if len(errs) > 0 {
			return nil, fmt.Errorf("row %d: %w", n+2, errs[0])
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// GroupRows collects rows by sequence key, preserving row order within a
// sequence. Keys are returned in sorted order.
func GroupRows(rows []ObjectRow) ([]sequence.Key, map[sequence.Key][]ObjectRow) {
	groups := make(map[sequence.Key][]ObjectRow)
	var keys []sequence.Key
	for _, r := range rows {
		if _, ok := groups[r.Frame.Key]; !ok {
			keys = append(keys, r.Frame.Key)
		}
		groups[r.Frame.Key] = append(groups[r.Frame.Key], r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, groups
}
