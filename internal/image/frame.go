// Package image provides frame loading, saving and conversion to OpenCV Mats.
package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"cell-tracker/pkg/geometry"

	"golang.org/x/image/tiff"
)

// Depth is the sample depth of a grayscale frame.
type Depth int

const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// Frame is one decoded grayscale raster.
type Frame struct {
	Path  string
	Image image.Image // *image.Gray or *image.Gray16
	Depth Depth
}

// Load decodes the image at path and converts it to 8- or 16-bit gray.
// Sources with more than 8 bits per sample keep 16 bits; everything else
// becomes 8-bit.
func Load(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	frame := &Frame{Path: path}
	switch src := img.(type) {
	case *image.Gray:
		frame.Image, frame.Depth = src, Depth8
	case *image.Gray16:
		frame.Image, frame.Depth = src, Depth16
	default:
		if is16Bit(img.ColorModel()) {
			frame.Image, frame.Depth = toGray16(img), Depth16
		} else {
			frame.Image, frame.Depth = toGray(img), Depth8
		}
	}
	return frame, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Size returns the frame dimensions.
func (f *Frame) Size() geometry.Size {
	return geometry.Size{Width: float64(f.Width()), Height: float64(f.Height())}
}

// Save writes img as a Deflate-compressed TIFF, creating parent directories.
// Gray and Gray16 images keep their bit depth.
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}

	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode tiff: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close image: %w", err)
	}
	return nil
}

func is16Bit(m color.Model) bool {
	switch m {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func toGray16(img image.Image) *image.Gray16 {
	b := img.Bounds()
	dst := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// SupportedFormats returns the list of frame file extensions the pipeline reads.
func SupportedFormats() []string {
	return []string{".tif", ".tiff", ".png"}
}

// IsSupportedFormat checks if the given path has a supported frame extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
