// Package normalize renders every frame of a sequence rotated so the
// anchor object's motion points in a fixed direction, recentred on the
// anchor and cropped to a square.
package normalize

import (
	"math"

	"cell-tracker/pkg/geometry"
)

// RotationFor returns the rotation in degrees (OpenCV convention,
// counter-clockwise on screen) that turns motion heading theta into the
// reference heading.
func RotationFor(theta, reference float64) float64 {
	return -(reference - theta)
}

// Transform maps source pixel coordinates of a size raster into a
// crop×crop output. It rotates about anchor by rotation degrees, moves the
// anchor to the raster centre (integer division) and then shifts by the
// top-left corner of the centred crop window.
func Transform(anchor geometry.Point2D, rotation float64, size geometry.Size, crop int) geometry.AffineTransform {
	rot := geometry.RotationAbout(anchor, rotation)

	c := size.Center()
	recentre := geometry.Translation(c.X-anchor.X, c.Y-anchor.Y)

	ox, oy := cropOrigin(size, crop)
	window := geometry.Translation(-ox, -oy)

	return window.Compose(recentre.Compose(rot))
}

// cropOrigin is the floor-divided top-left corner of a crop×crop window
// centred in size.
func cropOrigin(size geometry.Size, crop int) (float64, float64) {
	ox := math.Floor((size.Width - float64(crop)) / 2)
	oy := math.Floor((size.Height - float64(crop)) / 2)
	return ox, oy
}
