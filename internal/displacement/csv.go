package displacement

import (
	"strconv"
)

// Header is the column layout of the displacement table.
var Header = []string{
	"experiment", "species", "pool_ID", "seq_number", "file_name", "seq_frame",
	"centroid_x", "centroid_y", "file_path", "angular_displacement", "linear_displacement",
}

// Row renders r in Header order. Undefined values are empty fields.
func (r Record) Row() []string {
	px := r.Centroid.Truncate()
	return []string{
		r.Frame.Experiment,
		r.Frame.Species,
		r.Frame.PoolID,
		strconv.Itoa(r.Frame.Seq),
		r.Frame.FileName,
		strconv.Itoa(r.Frame.Frame),
		strconv.Itoa(px.X),
		strconv.Itoa(px.Y),
		r.Frame.Path,
		FormatNullable(r.Angular),
		FormatNullable(r.Linear),
	}
}

// FormatNullable formats v with the shortest exact representation, or the
// empty string for nil.
func FormatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ParseNullable is the inverse of FormatNullable. It also accepts the
// "None" and "(None, None)" spellings found in older tables.
func ParseNullable(s string) (*float64, error) {
	switch s {
	case "", "None", "(None, None)", "null", "NaN":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
