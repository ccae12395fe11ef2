package detect

import (
	"encoding/binary"
	"fmt"
	"image"

	img "cell-tracker/internal/image"
	"cell-tracker/pkg/geometry"

	"gocv.io/x/gocv"
)

// Detector extracts objects from grayscale frames.
type Detector struct {
	params Params
}

// NewDetector creates a Detector.
func NewDetector(params Params) *Detector {
	return &Detector{params: params}
}

// Params returns the detector's parameters.
func (d *Detector) Params() Params {
	return d.params
}

// DetectFile loads the frame at path and detects objects in it.
func (d *Detector) DetectFile(path string) (Result, error) {
	frame, err := img.Load(path)
	if err != nil {
		return Result{}, err
	}
	return d.DetectImage(frame.Image)
}

// DetectImage detects objects in a Go image.
func (d *Detector) DetectImage(src image.Image) (Result, error) {
	mat, err := img.ToMat(src)
	if err != nil {
		return Result{}, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	return d.DetectMat(mat)
}

// DetectMat detects objects in a single-channel 8- or 16-bit Mat. Frames
// without foreground yield an empty Result, not an error.
func (d *Detector) DetectMat(src gocv.Mat) (Result, error) {
	if src.Empty() {
		return Result{}, fmt.Errorf("empty image")
	}
	if src.Channels() != 1 {
		return Result{}, fmt.Errorf("expected single-channel image, got %d channels", src.Channels())
	}

	result := Result{Size: geometry.Size{Width: float64(src.Cols()), Height: float64(src.Rows())}}

	mask := binarize(src, d.params.Threshold)
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area <= d.params.MinArea {
			continue
		}

		det := Detection{Object: len(result.Detections) + 1, Area: area}
		c, ok, err := contourCentroid(contour)
		if err != nil {
			return Result{}, err
		}
		det.Centroid = c
		det.Degenerate = !ok
		result.Detections = append(result.Detections, det)
	}

	return result, nil
}

// binarize returns an 8-bit mask with 255 where src > level.
func binarize(src gocv.Mat, level float64) gocv.Mat {
	thresh := gocv.NewMat()
	gocv.Threshold(src, &thresh, float32(level), 255, gocv.ThresholdBinary)
	if thresh.Type() == gocv.MatTypeCV8UC1 {
		return thresh
	}
	defer thresh.Close()

	mask := gocv.NewMat()
	thresh.ConvertTo(&mask, gocv.MatTypeCV8UC1)
	return mask
}

// contourCentroid returns the area centroid of a closed contour from its
// spatial moments. A contour enclosing no area yields the origin and ok false.
func contourCentroid(contour gocv.PointVector) (c geometry.Point2D, ok bool, err error) {
	pts := contour.ToPoints()
	if len(pts) == 0 {
		return geometry.Point2D{}, false, nil
	}

	buf := make([]byte, 8*len(pts))
	for i, p := range pts {
		binary.LittleEndian.PutUint32(buf[8*i:], uint32(int32(p.X)))
		binary.LittleEndian.PutUint32(buf[8*i+4:], uint32(int32(p.Y)))
	}
	mat, err := gocv.NewMatFromBytes(len(pts), 1, gocv.MatTypeCV32SC2, buf)
	if err != nil {
		return geometry.Point2D{}, false, fmt.Errorf("failed to pack contour: %w", err)
	}
	defer mat.Close()

	// cx = m10/m00, cy = m01/m00
	moments := gocv.Moments(mat, false)
	m00 := moments["m00"]
	if m00 == 0 {
		return geometry.Point2D{}, false, nil
	}
	return geometry.Point2D{X: moments["m10"] / m00, Y: moments["m01"] / m00}, true, nil
}
