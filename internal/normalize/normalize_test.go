package normalize

import (
	goimage "image"
	"image/color"
	"path/filepath"
	"testing"

	"cell-tracker/internal/detect"
	errors "cell-tracker/internal/errors"
	"cell-tracker/internal/image"
	"cell-tracker/internal/sequence"
	"cell-tracker/internal/trajectory"
	"cell-tracker/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformAnchorToCropCentre(t *testing.T) {
	tests := []struct {
		name   string
		anchor geometry.Point2D
		theta  float64
		size   geometry.Size
	}{
		{"even raster", geometry.Point2D{X: 40, Y: 170}, 12, geometry.Size{Width: 640, Height: 480}},
		{"odd raster", geometry.Point2D{X: 300, Y: 2}, -135, geometry.Size{Width: 301, Height: 257}},
		{"already upward", geometry.Point2D{X: 64, Y: 64}, -90, geometry.Size{Width: 128, Height: 128}},
		{"raster smaller than crop", geometry.Point2D{X: 10, Y: 10}, 45, geometry.Size{Width: 50, Height: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Transform(tt.anchor, RotationFor(tt.theta, -90), tt.size, 128)
			got := tr.Apply(tt.anchor)
			assert.InDelta(t, 64, got.X, 1)
			assert.InDelta(t, 64, got.Y, 1)
		})
	}
}

func TestTransformTurnsMotionUpward(t *testing.T) {
	anchor := geometry.Point2D{X: 200, Y: 100}
	for _, theta := range []float64{0, 30, 90, -45, 180, -170} {
		tr := Transform(anchor, RotationFor(theta, -90), geometry.Size{Width: 400, Height: 300}, 128)

		step := geometry.Rotation(theta * 3.141592653589793 / 180).Apply(geometry.Point2D{X: 10})
		moved := tr.Apply(anchor.Add(step)).Sub(tr.Apply(anchor))

		assert.InDelta(t, 0, moved.X, 1e-9, "theta %v", theta)
		assert.InDelta(t, -10, moved.Y, 1e-9, "theta %v", theta)
	}
}

func TestRotationFor(t *testing.T) {
	assert.InDelta(t, 90, RotationFor(0, -90), 0)
	assert.InDelta(t, 0, RotationFor(-90, -90), 0)
}

func blobImage(w, h int, cx, cy, r int) *goimage.Gray {
	img := goimage.NewGray(goimage.Rect(0, 0, w, h))
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func TestRenderRoundTrip(t *testing.T) {
	src := blobImage(320, 240, 60, 50, 4)
	n := &Normalizer{CropSize: 128, ReferenceAngle: -90}
	plan := Plan{Anchor: geometry.Point2D{X: 60, Y: 50}, Rotation: RotationFor(37, -90)}

	out, err := n.Render(src, plan)
	require.NoError(t, err)
	require.IsType(t, &goimage.Gray{}, out)
	assert.Equal(t, goimage.Rect(0, 0, 128, 128), out.Bounds())

	res, err := detect.NewDetector(detect.DefaultParams().WithThreshold(127)).DetectImage(out)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.InDelta(t, 64, res.Detections[0].Centroid.X, 1)
	assert.InDelta(t, 64, res.Detections[0].Centroid.Y, 1)
}

func TestRenderKeepsDepth(t *testing.T) {
	src := goimage.NewGray16(goimage.Rect(0, 0, 200, 200))
	for y := 96; y <= 104; y++ {
		for x := 96; x <= 104; x++ {
			src.SetGray16(x, y, color.Gray16{Y: 40000})
		}
	}
	n := &Normalizer{CropSize: 64}
	out, err := n.Render(src, Plan{Anchor: geometry.Point2D{X: 100, Y: 100}})
	require.NoError(t, err)
	g, ok := out.(*goimage.Gray16)
	require.True(t, ok)
	assert.Equal(t, uint16(40000), g.Gray16At(32, 32).Y)
	assert.Equal(t, uint16(0), g.Gray16At(0, 0).Y)
}

func rowsFor(key sequence.Key, path string, angle *float64) []trajectory.ObjectRow {
	fk := sequence.FrameKey{Key: key, Frame: 0, FileName: filepath.Base(path), Path: path}
	return []trajectory.ObjectRow{
		{Frame: fk, Object: 1, Area: 30, Centroid: geometry.PointInt{X: 5, Y: 5}},
		{Frame: fk, Object: 2, Area: 81, Centroid: geometry.PointInt{X: 60, Y: 50}, Angle: angle},
	}
}

func TestPlanMissingAnchor(t *testing.T) {
	key := sequence.Key{Experiment: "e", Species: "s", PoolID: "p", Seq: 1}
	n := &Normalizer{ReferenceAngle: -90}

	_, err := n.Plan(key, rowsFor(key, "a_seq1_f0to3_0.tif", nil))
	assert.True(t, errors.Is(err, errors.ErrMissingAnchor))

	later := rowsFor(key, "a_seq1_f0to3_2.tif", nil)
	for i := range later {
		later[i].Frame.Frame = 2
	}
	_, err = n.Plan(key, later)
	assert.True(t, errors.Is(err, errors.ErrMissingAnchor))

	angle := 0.0
	plan, err := n.Plan(key, rowsFor(key, "a_seq1_f0to3_0.tif", &angle))
	require.NoError(t, err)
	assert.Equal(t, geometry.Point2D{X: 60, Y: 50}, plan.Anchor)
	assert.InDelta(t, 90, plan.Rotation, 0)
}

func TestFrameWritesOutput(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "exp1", "objects", "cr", "p1", "cr_p1_seq1_f0to3_0.tif")
	require.NoError(t, image.Save(src, blobImage(160, 120, 60, 50, 4)))

	fk, ok := sequence.ParsePath(root, src, "objects")
	require.True(t, ok)

	n := &Normalizer{Root: root, OutputDir: "final_transformed_images", CropSize: 128, ReferenceAngle: -90}
	dst, err := n.Frame(fk, Plan{Key: fk.Key, Anchor: geometry.Point2D{X: 60, Y: 50}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "exp1", "final_transformed_images", "cr", "p1", fk.FileName), dst)

	f, err := image.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, image.Depth8, f.Depth)
	assert.Equal(t, 128, f.Width())

	orig, err := image.Load(src)
	require.NoError(t, err)
	assert.Equal(t, 160, orig.Width(), "source untouched")

	fk.Path = filepath.Join(root, "missing.tif")
	_, err = n.Frame(fk, Plan{})
	assert.True(t, errors.Is(err, errors.ErrFileIO))
}

func TestDiscardRemovesStaleCrops(t *testing.T) {
	root := t.TempDir()
	n := &Normalizer{Root: root, OutputDir: "final_transformed_images", CropSize: 32}
	key := sequence.Key{Experiment: "exp1", Species: "cr", PoolID: "p1", Seq: 2}
	stale := sequence.FrameKey{Key: key, Frame: 0, FileName: "cr_p1_seq2_f0to1_0.tif"}
	never := sequence.FrameKey{Key: key, Frame: 1, FileName: "cr_p1_seq2_f0to1_1.tif"}
	require.NoError(t, image.Save(n.OutputPath(stale), blobImage(32, 32, 16, 16, 2)))

	removed, err := n.Discard([]sequence.FrameKey{stale, never})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, n.OutputPath(stale))
}
