package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayRamp(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			g.SetGray(x, y, color.Gray{Y: uint8((x * 255) / max(1, w-1))}) //nolint:gosec // bounded
		}
	}
	return g
}

func TestCropRect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))

	got := CropRect(img, image.Rect(10, 5, 60, 45))
	assert.Equal(t, 50, got.Bounds().Dx())
	assert.Equal(t, 40, got.Bounds().Dy())

	empty := CropRect(img, image.Rect(10, 20, 60, 20))
	require.NotNil(t, empty)
	assert.True(t, IsEmpty(empty))
}

func TestCropRect_OffsetOrigin(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 40, 40))
	base.Set(15, 15, color.RGBA{R: 255, A: 255})
	sub := base.SubImage(image.Rect(10, 10, 40, 40))

	got := CropRect(sub, image.Rect(5, 5, 6, 6))
	require.Equal(t, 1, got.Bounds().Dx())
	r, _, _, _ := got.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestScale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 30))
	got := Scale(img, 1.6)
	assert.Equal(t, 160, got.Bounds().Dx())
	assert.Equal(t, 48, got.Bounds().Dy())
}

func TestEqualizeHist(t *testing.T) {
	t.Run("stretches narrow range", func(t *testing.T) {
		g := image.NewGray(image.Rect(0, 0, 4, 1))
		copy(g.Pix, []uint8{100, 101, 102, 103})

		eq := EqualizeHist(g)
		assert.Equal(t, []uint8{0, 85, 170, 255}, eq.Pix)
	})

	t.Run("flat image unchanged", func(t *testing.T) {
		g := image.NewGray(image.Rect(0, 0, 3, 3))
		for i := range g.Pix {
			g.Pix[i] = 42
		}
		eq := EqualizeHist(g)
		for _, v := range eq.Pix {
			assert.Equal(t, uint8(42), v)
		}
	})

	t.Run("empty image", func(t *testing.T) {
		eq := EqualizeHist(image.NewGray(image.Rect(0, 0, 0, 0)))
		assert.True(t, IsEmpty(eq))
	})
}

func TestUnsharpMask_FlatRegionUnchanged(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range g.Pix {
		g.Pix[i] = 128
	}
	out := UnsharpMask(g, 1.6, 1.0)
	for _, v := range out.Pix {
		assert.Equal(t, uint8(128), v)
	}
}

func TestUnsharpMask_IncreasesEdgeContrast(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 20, 1))
	for x := range 20 {
		if x >= 10 {
			g.Pix[x] = 200
		} else {
			g.Pix[x] = 50
		}
	}
	out := UnsharpMask(g, 1.6, 1.0)
	assert.Less(t, out.Pix[9], uint8(50))
	assert.Greater(t, out.Pix[10], uint8(200))
}

func TestGaussianSigmaForBlock(t *testing.T) {
	assert.InDelta(t, 5.0, GaussianSigmaForBlock(31), 1e-9)
	assert.InDelta(t, 0.8, GaussianSigmaForBlock(3), 1e-9)
}

func TestAdaptiveThresholdGaussian(t *testing.T) {
	t.Run("binary output", func(t *testing.T) {
		out, err := AdaptiveThresholdGaussian(grayRamp(64, 8), 31, 5)
		require.NoError(t, err)
		for _, v := range out.Pix {
			assert.True(t, v == 0 || v == 255)
		}
	})

	t.Run("flat image is white", func(t *testing.T) {
		g := image.NewGray(image.Rect(0, 0, 8, 8))
		for i := range g.Pix {
			g.Pix[i] = 90
		}
		out, err := AdaptiveThresholdGaussian(g, 31, 5)
		require.NoError(t, err)
		for _, v := range out.Pix {
			assert.Equal(t, uint8(255), v)
		}
	})

	t.Run("dark spot on light background", func(t *testing.T) {
		g := image.NewGray(image.Rect(0, 0, 41, 41))
		for i := range g.Pix {
			g.Pix[i] = 220
		}
		g.SetGray(20, 20, color.Gray{Y: 10})
		out, err := AdaptiveThresholdGaussian(g, 31, 5)
		require.NoError(t, err)
		assert.Equal(t, uint8(0), out.GrayAt(20, 20).Y)
		assert.Equal(t, uint8(255), out.GrayAt(0, 0).Y)
	})

	t.Run("invalid block size", func(t *testing.T) {
		_, err := AdaptiveThresholdGaussian(grayRamp(8, 8), 30, 5)
		var ipe *ImageProcessingError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, "adaptive_threshold", ipe.Operation)
	})
}

func TestInvertGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 1))
	g.Pix[0], g.Pix[1] = 0, 255
	inv := InvertGray(g)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, inv.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{A: 255}, inv.NRGBAAt(1, 0))
}

func TestToGrayAndBack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 255
	}
	g := ToGray(img)
	assert.Equal(t, uint8(255), g.GrayAt(1, 1).Y)

	rgb := GrayToNRGBA(g)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, rgb.NRGBAAt(2, 2))
}
