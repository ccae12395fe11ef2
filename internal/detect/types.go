// Package detect finds foreground objects in a frame and measures their
// area and centroid.
package detect

import (
	"cell-tracker/pkg/geometry"
)

// Params configures detection.
type Params struct {
	// MinArea drops contours whose area is not strictly greater than it.
	MinArea float64
	// Threshold is the binarization level: pixels above it are foreground.
	// For 16-bit frames it is compared against the raw 16-bit value.
	Threshold float64
}

// Detection is one foreground object found in a frame.
type Detection struct {
	Object   int              // 1-based position in contour order
	Area     float64          // contour area in px²
	Centroid geometry.Point2D // first-moment centroid
	// Degenerate is set when the contour has zero moment area; Centroid is
	// then the origin and must not be used for tracking.
	Degenerate bool
}

// Pixel returns the centroid truncated to integer pixel coordinates.
func (d Detection) Pixel() geometry.PointInt {
	return d.Centroid.Truncate()
}

// Result holds every detection of one frame along with the frame size.
type Result struct {
	Detections []Detection
	Size       geometry.Size
}

// Empty reports whether nothing was found.
func (r Result) Empty() bool {
	return len(r.Detections) == 0
}

// Count returns the number of detections.
func (r Result) Count() int {
	return len(r.Detections)
}
