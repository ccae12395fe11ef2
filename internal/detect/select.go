package detect

import (
	"math"

	"cell-tracker/pkg/geometry"
)

// SelectNearest returns the detection whose centroid is closest (squared
// Euclidean distance) to ref. When ref is nil the centre of size is used.
// Degenerate detections are never selected; ok is false when nothing
// qualifies.
func SelectNearest(dets []Detection, ref *geometry.Point2D, size geometry.Size) (Detection, bool) {
	target := size.Center()
	if ref != nil {
		target = *ref
	}

	best := -1
	bestDist := math.Inf(1)
	for i, d := range dets {
		if d.Degenerate {
			continue
		}
		if dist := d.Centroid.DistanceSq(target); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return Detection{}, false
	}
	return dets[best], true
}

// SelectLargest returns the detection with the largest area. Ties keep the
// first in contour order.
func SelectLargest(dets []Detection) (Detection, bool) {
	best := -1
	for i, d := range dets {
		if best < 0 || d.Area > dets[best].Area {
			best = i
		}
	}
	if best < 0 {
		return Detection{}, false
	}
	return dets[best], true
}
