package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/barscan/internal/testutil"
	"github.com/MeKo-Tech/barscan/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectVariants(cfg Config, img image.Image) []Variant {
	var out []Variant
	for v := range cfg.Variants(img) {
		out = append(out, v)
	}
	return out
}

func variantKinds(vs []Variant) []VariantKind {
	kinds := make([]VariantKind, len(vs))
	for i, v := range vs {
		kinds[i] = v.Kind
	}
	return kinds
}

func TestVariants_SmallImage(t *testing.T) {
	img := testutil.CreateGradientImage(100, 60)
	vs := collectVariants(DefaultConfig(), img)

	require.Len(t, vs, 5)
	assert.Equal(t, []VariantKind{
		VariantOriginal, VariantUpscaled, VariantSharpened, VariantThreshold, VariantInverted,
	}, variantKinds(vs))
	for _, v := range vs {
		require.NoError(t, v.Err, v.Kind.String())
	}

	assert.Same(t, img, vs[0].Image)
	assert.Equal(t, image.Pt(160, 96), vs[1].Image.Bounds().Size())
	for _, v := range vs[2:] {
		assert.Equal(t, image.Pt(160, 96), v.Image.Bounds().Size(), v.Kind.String())
	}
}

func TestVariants_LargeImageSkipsUpscale(t *testing.T) {
	img := testutil.CreateTestImage(1400, 20, color.White)
	vs := collectVariants(DefaultConfig(), img)

	assert.Equal(t, []VariantKind{
		VariantOriginal, VariantSharpened, VariantThreshold, VariantInverted,
	}, variantKinds(vs))
	assert.Equal(t, image.Pt(1400, 20), vs[1].Image.Bounds().Size())
}

func TestVariants_ThresholdIsBinaryAndInverted(t *testing.T) {
	img := testutil.MustGenerateQR("XXbinary")
	vs := collectVariants(DefaultConfig(), img)
	require.Len(t, vs, 5)

	thr := vs[3].Image
	inv := vs[4].Image
	b := thr.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += 7 {
		for x := b.Min.X; x < b.Max.X; x += 7 {
			tv := color.GrayModel.Convert(thr.At(x, y)).(color.Gray).Y
			iv := color.GrayModel.Convert(inv.At(x, y)).(color.Gray).Y
			assert.Contains(t, []uint8{0, 255}, tv)
			assert.Equal(t, 255-tv, iv)
		}
	}
}

func TestVariants_DoesNotMutateInput(t *testing.T) {
	img := testutil.CreateGradientImage(64, 64)
	before := append([]uint8(nil), img.Pix...)

	for range DefaultConfig().Variants(img) {
	}
	assert.Equal(t, before, img.Pix)
}

func TestVariants_EmptyImage(t *testing.T) {
	for _, img := range []image.Image{nil, image.NewNRGBA(image.Rect(0, 0, 0, 0))} {
		vs := collectVariants(DefaultConfig(), img)
		require.Len(t, vs, 5)
		for _, v := range vs {
			assert.ErrorIs(t, v.Err, ErrEmptyImage)
			assert.Nil(t, v.Image)
		}
	}
}

func TestVariants_FailureCarriesForward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThresholdBlock = 4 // even: rejected by the threshold step

	vs := collectVariants(cfg, testutil.CreateGradientImage(30, 30))
	require.Len(t, vs, 5)
	assert.NoError(t, vs[2].Err)
	assert.Error(t, vs[3].Err)
	assert.Error(t, vs[4].Err)
	assert.Equal(t, vs[3].Err, vs[4].Err)
}

func TestVariants_EarlyStopAndRestart(t *testing.T) {
	img := testutil.CreateGradientImage(40, 40)
	seq := DefaultConfig().Variants(img)

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	assert.Len(t, collectVariants(DefaultConfig(), img), 5)
	assert.Len(t, collectVariants(DefaultConfig(), img), 5)
}

func TestSafely_RecoversPanic(t *testing.T) {
	out, err := safely("explode", func() (*image.Gray, error) {
		var g *image.Gray
		_ = g.Pix[0]
		return g, nil
	})
	assert.Nil(t, out)
	var ipe *utils.ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "explode", ipe.Operation)
}
