// Package focus scores frame sharpness and picks the in-focus stretches of
// a raw recording.
package focus

import (
	"fmt"
	"image"
	"slices"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	img "cell-tracker/internal/image"
)

// Header is the column layout of the focus table: one row per scored frame.
var Header = []string{"experiment", "species", "pool_ID", "recording", "position", "focus_measure", "sharp", "kept"}

// Options controls which frames of a recording are kept.
type Options struct {
	Percentile   float64 // 0-100; frames strictly sharper than this percentile are kept
	ExcludeStart int     // leading frames never scored
	ExcludeEnd   int     // trailing frames never scored
	Adjacent     int     // neighbours kept on each side of a sharp frame
}

// Measure returns the variance of the Laplacian of a single-channel frame.
// Sharper frames score higher.
func Measure(src gocv.Mat) (float64, error) {
	if src.Empty() {
		return 0, fmt.Errorf("empty image")
	}
	if src.Channels() != 1 {
		return 0, fmt.Errorf("expected single-channel image, got %d channels", src.Channels())
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(src, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// MeasureImage scores a Go image.
func MeasureImage(src image.Image) (float64, error) {
	mat, err := img.ToMat(src)
	if err != nil {
		return 0, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()
	return Measure(mat)
}

// MeasureFile loads the frame at path and scores it.
func MeasureFile(path string) (float64, error) {
	frame, err := img.Load(path)
	if err != nil {
		return 0, err
	}
	return MeasureImage(frame.Image)
}

// Window returns the positions [start, end) of a recording of n frames that
// are scored.
func (o Options) Window(n int) (start, end int, err error) {
	if o.ExcludeStart+o.ExcludeEnd >= n {
		return 0, 0, fmt.Errorf("recording of %d frames is too short to exclude %d leading and %d trailing frames",
			n, o.ExcludeStart, o.ExcludeEnd)
	}
	return o.ExcludeStart, n - o.ExcludeEnd, nil
}

// Threshold returns the sharpness a frame must exceed to be kept.
func (o Options) Threshold(measures []float64) float64 {
	sorted := slices.Clone(measures)
	slices.Sort(sorted)
	return stat.Quantile(o.Percentile/100, stat.LinInterp, sorted, nil)
}

// Select returns the ascending positions to keep from a recording of n
// frames, given the measures of the positions in Window(n). Each frame
// above the threshold is kept together with Adjacent frames on either side,
// clipped to the recording.
func Select(n int, measures []float64, o Options) []int {
	if len(measures) == 0 {
		return nil
	}
	threshold := o.Threshold(measures)

	keep := make([]bool, n)
	for i, m := range measures {
		if m <= threshold {
			continue
		}
		idx := i + o.ExcludeStart
		for j := max(0, idx-o.Adjacent); j < min(n, idx+o.Adjacent+1); j++ {
			keep[j] = true
		}
	}

	var out []int
	for i, k := range keep {
		if k {
			out = append(out, i)
		}
	}
	return out
}

// Runs splits ascending positions into runs of consecutive values.
func Runs(positions []int) [][]int {
	var runs [][]int
	for i, p := range positions {
		if i == 0 || p != positions[i-1]+1 {
			runs = append(runs, nil)
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], p)
	}
	return runs
}
