package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient8(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 256)})
		}
	}
	return img
}

func gradient16(w, h int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(x*1021 + y*257)})
		}
	}
	return img
}

func TestSaveLoadKeepsDepth(t *testing.T) {
	dir := t.TempDir()

	p8 := filepath.Join(dir, "nested", "a_seq1_f0to9_0.tif")
	require.NoError(t, Save(p8, gradient8(20, 11)))
	f8, err := Load(p8)
	require.NoError(t, err)
	assert.Equal(t, Depth8, f8.Depth)
	assert.Equal(t, gradient8(20, 11).Pix, f8.Image.(*image.Gray).Pix)

	p16 := filepath.Join(dir, "b_seq1_f0to9_0.tif")
	require.NoError(t, Save(p16, gradient16(9, 14)))
	f16, err := Load(p16)
	require.NoError(t, err)
	assert.Equal(t, Depth16, f16.Depth)
	assert.Equal(t, gradient16(9, 14).Pix, f16.Image.(*image.Gray16).Pix)
	assert.Equal(t, 9, f16.Width())
	assert.Equal(t, 14, f16.Height())
}

func TestLoadConvertsColorPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgb.png")
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	frame, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Depth8, frame.Depth)
	gray := frame.Image.(*image.Gray)
	assert.Equal(t, uint8(255), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.tif"))
	assert.Error(t, err)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("x/a_seq1_f1to3_2.tif"))
	assert.True(t, IsSupportedFormat("A.TIFF"))
	assert.True(t, IsSupportedFormat("a.png"))
	assert.False(t, IsSupportedFormat("objects.csv"))
	assert.False(t, IsSupportedFormat("noext"))
}

func TestMatRoundTrip(t *testing.T) {
	for _, src := range []image.Image{gradient8(17, 5), gradient16(6, 9)} {
		mat, err := ToMat(src)
		require.NoError(t, err)

		back, err := FromMat(mat)
		mat.Close()
		require.NoError(t, err)
		assert.Equal(t, src, back)
	}
}
