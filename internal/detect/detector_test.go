package detect

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	img "cell-tracker/internal/image"
	"cell-tracker/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fillRect paints the inclusive pixel rectangle [x0,x1]×[y0,y1].
func fillRect(dst *image.Gray, x0, y0, x1, y1 int) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dst.SetGray(x, y, color.Gray{Y: 255})
		}
	}
}

func TestDetectSingleObject(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 64, 48))
	fillRect(frame, 20, 30, 29, 39)

	res, err := NewDetector(DefaultParams()).DetectImage(frame)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())

	d := res.Detections[0]
	assert.Equal(t, 1, d.Object)
	assert.InDelta(t, 81, d.Area, 1e-9) // contour runs through boundary pixel centres
	assert.InDelta(t, 24.5, d.Centroid.X, 1e-9)
	assert.InDelta(t, 34.5, d.Centroid.Y, 1e-9)
	assert.False(t, d.Degenerate)
	assert.Equal(t, geometry.PointInt{X: 24, Y: 34}, d.Pixel())
	assert.Equal(t, geometry.Size{Width: 64, Height: 48}, res.Size)
}

func TestDetectAreaCutoff(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 64, 64))
	fillRect(frame, 2, 2, 6, 6)     // 5x5 pixels, contour area 16: dropped
	fillRect(frame, 20, 20, 25, 25) // 6x6 pixels, contour area 25: kept
	fillRect(frame, 40, 40, 41, 41) // speck

	res, err := NewDetector(DefaultParams()).DetectImage(frame)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.InDelta(t, 25, res.Detections[0].Area, 1e-9)

	res, err = NewDetector(DefaultParams().WithMinArea(10)).DetectImage(frame)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count())
}

func TestDetectEmptyFrame(t *testing.T) {
	res, err := NewDetector(DefaultParams()).DetectImage(image.NewGray(image.Rect(0, 0, 32, 32)))
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDetect16BitThreshold(t *testing.T) {
	frame := image.NewGray16(image.Rect(0, 0, 40, 40))
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			frame.SetGray16(x, y, color.Gray16{Y: 1000})
		}
	}

	res, err := NewDetector(DefaultParams().WithThreshold(500)).DetectImage(frame)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.InDelta(t, 14.5, res.Detections[0].Centroid.X, 1e-9)

	res, err = NewDetector(DefaultParams().WithThreshold(2000)).DetectImage(frame)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDetectFile(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 50, 50))
	fillRect(frame, 5, 5, 14, 14)
	path := filepath.Join(t.TempDir(), "cr_p1_seq1_f0to3_0.tif")
	require.NoError(t, img.Save(path, frame))

	res, err := NewDetector(DefaultParams()).DetectFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.InDelta(t, 9.5, res.Detections[0].Centroid.Y, 1e-9)

	_, err = NewDetector(DefaultParams()).DetectFile(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)
}

func TestContourCentroidSquare(t *testing.T) {
	// 10x10 square with corner at (2, 4), both orientations.
	ccw := []image.Point{{2, 4}, {12, 4}, {12, 14}, {2, 14}}
	cw := []image.Point{{2, 4}, {2, 14}, {12, 14}, {12, 4}}

	for _, pts := range [][]image.Point{ccw, cw} {
		pv := gocv.NewPointVectorFromPoints(pts)
		c, ok, err := contourCentroid(pv)
		pv.Close()

		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 7, c.X, 1e-9)
		assert.InDelta(t, 9, c.Y, 1e-9)
	}
}

func TestContourCentroidDegenerate(t *testing.T) {
	tests := []struct {
		name string
		pts  []image.Point
	}{
		{"empty", nil},
		{"two points", []image.Point{{0, 0}, {5, 5}}},
		{"collinear", []image.Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv := gocv.NewPointVectorFromPoints(tt.pts)
			defer pv.Close()

			c, ok, err := contourCentroid(pv)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, geometry.Point2D{}, c)
		})
	}
}
