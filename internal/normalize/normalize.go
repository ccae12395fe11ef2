package normalize

import (
	"fmt"
	goimage "image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	errors "cell-tracker/internal/errors"
	"cell-tracker/internal/image"
	"cell-tracker/internal/sequence"
	"cell-tracker/internal/trajectory"
	"cell-tracker/pkg/geometry"
)

// Normalizer renders the normalized crops of a sequence.
type Normalizer struct {
	Root           string  // experiments tree
	OutputDir      string  // stage directory under each experiment
	CropSize       int     // output edge length in pixels
	ReferenceAngle float64 // heading the anchor motion is turned to
	AnchorFrame    int
}

// Plan is the orientation of one sequence derived from its anchor object.
type Plan struct {
	Key      sequence.Key
	Anchor   geometry.Point2D
	Rotation float64 // degrees
}

// Plan selects the anchor of a sequence from its object rows. It fails
// with a missing-anchor error when the anchor frame has no object or the
// anchor object has no motion angle.
func (n *Normalizer) Plan(key sequence.Key, rows []trajectory.ObjectRow) (Plan, error) {
	anchor, ok := trajectory.Anchor(rows, n.AnchorFrame)
	if !ok {
		return Plan{}, errors.New(errors.CategoryMissingAnchor, key.String(), "no object in frame %d", n.AnchorFrame)
	}
	if anchor.Angle == nil {
		return Plan{}, errors.New(errors.CategoryMissingAnchor, key.String(), "anchor object %d has no motion angle", anchor.Object)
	}
	return Plan{
		Key:      key,
		Anchor:   anchor.Centroid.ToFloat(),
		Rotation: RotationFor(*anchor.Angle, n.ReferenceAngle),
	}, nil
}

// OutputPath returns where the normalized version of fk is written.
func (n *Normalizer) OutputPath(fk sequence.FrameKey) string {
	return filepath.Join(n.Root, fk.Experiment, n.OutputDir, fk.Species, fk.PoolID, fk.FileName)
}

// Render warps src into a CropSize×CropSize raster of the same depth.
func (n *Normalizer) Render(src goimage.Image, plan Plan) (goimage.Image, error) {
	b := src.Bounds()
	size := geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	t := Transform(plan.Anchor, plan.Rotation, size, n.CropSize)

	mat, err := image.ToMat(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	warped := warpAffine(mat, t, n.CropSize, n.CropSize)
	defer warped.Close()

	return image.FromMat(warped)
}

// Frame loads fk, renders it with plan and writes the result. The source
// file is never modified.
func (n *Normalizer) Frame(fk sequence.FrameKey, plan Plan) (string, error) {
	frame, err := image.Load(fk.Path)
	if err != nil {
		return "", errors.Wrap(errors.CategoryFileIO, fk.Path, err)
	}
	out, err := n.Render(frame.Image, plan)
	if err != nil {
		return "", errors.Wrap(errors.CategoryFileIO, fk.Path, err)
	}
	dst := n.OutputPath(fk)
	if err := image.Save(dst, out); err != nil {
		return "", errors.Wrap(errors.CategoryFileIO, dst, err)
	}
	return dst, nil
}

// Discard removes crops left by an earlier run for frames that are no
// longer rendered. It returns how many files were removed.
func (n *Normalizer) Discard(frames []sequence.FrameKey) (int, error) {
	removed := 0
	for _, fk := range frames {
		dst := n.OutputPath(fk)
		err := os.Remove(dst)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, errors.Wrap(errors.CategoryFileIO, dst, err)
		}
	}
	return removed, nil
}

func warpAffine(src gocv.Mat, t geometry.AffineTransform, width, height int) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	coeffs := t.ToMatrix()
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, coeffs[r][c])
		}
	}

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, m, goimage.Point{X: width, Y: height},
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return dst
}
