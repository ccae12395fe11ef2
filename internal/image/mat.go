package image

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// ToMat converts a grayscale image to a single-channel Mat: *image.Gray to
// CV_8UC1 and *image.Gray16 to CV_16UC1. Other image types are converted to
// 8-bit gray first.
func ToMat(img image.Image) (gocv.Mat, error) {
	switch src := img.(type) {
	case *image.Gray:
		return grayToMat(src), nil
	case *image.Gray16:
		return gray16ToMat(src), nil
	case nil:
		return gocv.NewMat(), fmt.Errorf("nil image")
	default:
		return grayToMat(toGray(img)), nil
	}
}

// FromMat converts a CV_8UC1 or CV_16UC1 Mat back to *image.Gray or *image.Gray16.
func FromMat(mat gocv.Mat) (image.Image, error) {
	h, w := mat.Rows(), mat.Cols()
	switch mat.Type() {
	case gocv.MatTypeCV8UC1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		forStripes(h, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				row := img.Pix[y*img.Stride:]
				for x := 0; x < w; x++ {
					row[x] = mat.GetUCharAt(y, x)
				}
			}
		})
		return img, nil
	case gocv.MatTypeCV16UC1:
		img := image.NewGray16(image.Rect(0, 0, w, h))
		forStripes(h, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				row := img.Pix[y*img.Stride:]
				for x := 0; x < w; x++ {
					v := uint16(mat.GetShortAt(y, x))
					row[2*x] = uint8(v >> 8)
					row[2*x+1] = uint8(v)
				}
			}
		})
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported mat type %v", mat.Type())
	}
}

func grayToMat(img *image.Gray) gocv.Mat {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	forStripes(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				mat.SetUCharAt(y, x, img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	})
	return mat
}

func gray16ToMat(img *image.Gray16) gocv.Mat {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV16UC1)
	forStripes(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				mat.SetShortAt(y, x, int16(img.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	})
	return mat
}

// forStripes splits rows into one horizontal stripe per CPU and runs fn on each.
func forStripes(height int, fn func(y0, y1 int)) {
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers
	if rowsPerWorker == 0 {
		return
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		if startY >= height {
			break
		}
		endY := min(startY+rowsPerWorker, height)

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			fn(yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()
}
