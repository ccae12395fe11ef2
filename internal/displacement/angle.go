// Package displacement tracks an object through a sequence and computes
// its per-step linear displacement and turn angle.
package displacement

import (
	"math"

	"cell-tracker/pkg/geometry"
)

// TurnAngle returns the angle in degrees between the motion vectors a→b and
// b→c, in [0, 180]. ok is false when either vector has zero length.
func TurnAngle(a, b, c geometry.Point2D) (deg float64, ok bool) {
	return VectorAngle(b.Sub(a), c.Sub(b))
}

// VectorAngle returns the unsigned angle in degrees between v1 and v2.
// The cosine is clamped to [-1, 1] before arccos so rounding never yields NaN.
func VectorAngle(v1, v2 geometry.Point2D) (deg float64, ok bool) {
	n1, n2 := v1.Norm(), v2.Norm()
	if n1 == 0 || n2 == 0 {
		return 0, false
	}
	cos := v1.Dot(v2) / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

// Heading returns the direction of travel from a to b in degrees, measured
// with atan2(dy, dx) in image coordinates (Y down), in (-180, 180].
func Heading(a, b geometry.Point2D) float64 {
	d := b.Sub(a)
	return math.Atan2(d.Y, d.X) * 180 / math.Pi
}
