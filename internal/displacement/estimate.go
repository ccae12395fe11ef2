package displacement

import (
	"cell-tracker/internal/detect"
	"cell-tracker/internal/sequence"
	"cell-tracker/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// Sample is the tracked position of the object in one frame.
type Sample struct {
	Frame    sequence.FrameKey
	Centroid geometry.Point2D
	Found    bool // false when nothing was detected or the frame could not be read
	Count    int  // objects detected in the frame
}

// Record is one row of the displacement table.
type Record struct {
	Frame    sequence.FrameKey
	Centroid geometry.Point2D
	Found    bool
	Linear   *float64 // nil when undefined
	Angular  *float64 // nil when undefined
}

// Estimator computes displacement records for a tracked sequence.
type Estimator struct {
	// RequireStableCount treats a transition between frames with different
	// object counts as a lost track.
	RequireStableCount bool
}

// Estimate derives one Record per sample. Linear displacement at i needs a
// valid transition i-1→i; the turn angle at i needs valid transitions
// i-2→i-1 and i-1→i and two non-zero motion vectors. Anything else is nil
// and the walk continues with the next frame.
func (e Estimator) Estimate(samples []Sample) []Record {
	records := make([]Record, len(samples))
	for i, s := range samples {
		records[i] = Record{Frame: s.Frame, Centroid: s.Centroid, Found: s.Found}

		if !e.linked(samples, i) {
			continue
		}
		lin := samples[i-1].Centroid.Distance(s.Centroid)
		records[i].Linear = &lin

		if !e.linked(samples, i-1) {
			continue
		}
		if ang, ok := TurnAngle(samples[i-2].Centroid, samples[i-1].Centroid, s.Centroid); ok {
			records[i].Angular = &ang
		}
	}
	return records
}

// linked reports whether the object was re-identified between i-1 and i.
func (e Estimator) linked(samples []Sample, i int) bool {
	if i < 1 {
		return false
	}
	prev, cur := samples[i-1], samples[i]
	if !prev.Found || !cur.Found {
		return false
	}
	return !e.RequireStableCount || prev.Count == cur.Count
}

// Tracker follows one object through a sequence using nearest-centroid
// re-identification.
type Tracker struct{}

// Track picks, in every frame, the detection closest to the previous
// frame's tracked centroid, or to the image centre when the previous frame
// has none. Centroids are truncated to integer pixels. results[i] belongs
// to frames[i]; a nil entry marks a frame that could not be read.
func (Tracker) Track(frames []sequence.FrameKey, results []*detect.Result) []Sample {
	samples := make([]Sample, len(frames))
	var ref *geometry.Point2D
	for i, fk := range frames {
		samples[i].Frame = fk
		res := results[i]
		if res == nil {
			ref = nil
			continue
		}
		samples[i].Count = res.Count()

		det, ok := detect.SelectNearest(res.Detections, ref, res.Size)
		if !ok {
			ref = nil
			continue
		}
		c := det.Pixel().ToFloat()
		samples[i].Centroid = c
		samples[i].Found = true
		ref = &c
	}
	return samples
}

// MeanAbsAngle returns the mean of |angle| over records with a defined turn
// angle. ok is false when there are none, so callers can leave the
// sequence out of aggregates instead of counting it as zero.
func MeanAbsAngle(records []Record) (mean float64, ok bool) {
	var abs []float64
	for _, r := range records {
		if r.Angular == nil {
			continue
		}
		a := *r.Angular
		if a < 0 {
			a = -a
		}
		abs = append(abs, a)
	}
	if len(abs) == 0 {
		return 0, false
	}
	return stat.Mean(abs, nil), true
}

// SequenceMean is the aggregate turn statistic of one sequence.
type SequenceMean struct {
	Key          sequence.Key
	MeanAbsAngle float64
	Angles       int
}

// Aggregate computes SequenceMean for every sequence that has at least one
// defined angle, preserving input order.
func Aggregate(keys []sequence.Key, records [][]Record) []SequenceMean {
	var out []SequenceMean
	for i, key := range keys {
		mean, ok := MeanAbsAngle(records[i])
		if !ok {
			continue
		}
		n := 0
		for _, r := range records[i] {
			if r.Angular != nil {
				n++
			}
		}
		out = append(out, SequenceMean{Key: key, MeanAbsAngle: mean, Angles: n})
	}
	return out
}
