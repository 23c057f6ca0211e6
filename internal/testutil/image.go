package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestImage creates a solid image of the given size.
func CreateTestImage(width, height int, background color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
	return img
}

// CreateGradientImage creates an image with a smooth gradient and no symbol.
func CreateGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / max(1, width-1)),  //nolint:gosec // bounded
				G: uint8((y * 255) / max(1, height-1)), //nolint:gosec // bounded
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// Paste draws src onto a copy of dst with its top-left corner at pt.
func Paste(dst image.Image, src image.Image, pt image.Point) *image.RGBA {
	out := image.NewRGBA(dst.Bounds())
	draw.Draw(out, out.Bounds(), dst, dst.Bounds().Min, draw.Src)
	r := src.Bounds().Sub(src.Bounds().Min).Add(pt)
	draw.Draw(out, r, src, src.Bounds().Min, draw.Src)
	return out
}

// EncodePNG encodes img as PNG.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG at high quality.
func EncodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}), "Failed to encode JPEG image")
	return buf.Bytes()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// SaveImage saves an image as PNG to the specified path.
func SaveImage(t testing.TB, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600), "Failed to write %s", path)
}
