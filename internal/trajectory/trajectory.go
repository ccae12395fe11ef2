// Package trajectory builds the per-object table of a sequence and the
// motion angle used to orient it.
package trajectory

import (
	"cell-tracker/internal/detect"
	"cell-tracker/internal/displacement"
	"cell-tracker/internal/sequence"
)

// Analyzer computes ObjectRows for a sequence from per-frame detections.
type Analyzer struct {
	// AnchorFrame is the frame whose largest object receives the motion angle.
	AnchorFrame int
	// CompareOffset is how many frames after the anchor the displacement
	// that defines the motion angle is measured.
	CompareOffset int
}

// Analyze turns the detections of seq into rows. results[i] belongs to
// seq.Frames[i]; nil marks an unreadable frame, which contributes no rows.
//
// The anchor object is the largest object of the anchor frame. Its motion
// angle is the heading from its centroid to the centroid of the object
// with the same number in the comparison frame, and is only defined when
// the comparison frame exists and has the same object count. Centroids
// are truncated to pixels before the heading is taken.
func (a Analyzer) Analyze(seq sequence.Sequence, results []*detect.Result) []ObjectRow {
	var rows []ObjectRow
	for i, fk := range seq.Frames {
		res := results[i]
		if res == nil {
			continue
		}
		angles := make([]*float64, res.Count())
		if fk.Frame == a.AnchorFrame {
			if idx, angle, ok := a.motion(seq, results, res); ok {
				angles[idx] = &angle
			}
		}
		for j, d := range res.Detections {
			rows = append(rows, ObjectRow{
				Frame:    fk,
				Object:   d.Object,
				Area:     d.Area,
				Centroid: d.Pixel(),
				Angle:    angles[j],
			})
		}
	}
	return rows
}

// motion returns the index of the anchor object in anchor.Detections and
// its motion angle.
func (a Analyzer) motion(seq sequence.Sequence, results []*detect.Result, anchor *detect.Result) (int, float64, bool) {
	largest, ok := detect.SelectLargest(anchor.Detections)
	if !ok {
		return 0, 0, false
	}
	idx := largest.Object - 1

	cmp := indexOf(seq, a.AnchorFrame+a.CompareOffset)
	if cmp < 0 || results[cmp] == nil {
		return 0, 0, false
	}
	other := results[cmp]
	if other.Count() != anchor.Count() {
		return 0, 0, false
	}

	from := largest.Pixel().ToFloat()
	to := other.Detections[idx].Pixel().ToFloat()
	return idx, displacement.Heading(from, to), true
}

func indexOf(seq sequence.Sequence, frame int) int {
	for i, f := range seq.Frames {
		if f.Frame == frame {
			return i
		}
	}
	return -1
}

// Anchor picks the anchor row of one sequence's rows: the largest object
// of the anchor frame. ok is false when the anchor frame has no rows.
func Anchor(rows []ObjectRow, anchorFrame int) (ObjectRow, bool) {
	var (
		best  ObjectRow
		found bool
	)
	for _, r := range rows {
		if r.Frame.Frame != anchorFrame {
			continue
		}
		if !found || r.Area > best.Area {
			best, found = r, true
		}
	}
	return best, found
}

// Frames returns the distinct frames referenced by rows, in order of first
// appearance.
func Frames(rows []ObjectRow) []sequence.FrameKey {
	seen := make(map[string]bool)
	var out []sequence.FrameKey
	for _, r := range rows {
		if seen[r.Frame.Path] {
			continue
		}
		seen[r.Frame.Path] = true
		out = append(out, r.Frame)
	}
	return out
}
