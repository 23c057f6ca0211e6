package pipeline

import (
	"errors"
	"fmt"
	"image"
	"iter"

	"github.com/MeKo-Tech/barscan/internal/utils"
)

// ErrEmptyImage marks a candidate whose buffer has no pixels.
var ErrEmptyImage = errors.New("empty image region")

// VariantKind identifies one preprocessing rendering.
type VariantKind int

const (
	VariantOriginal VariantKind = iota
	VariantUpscaled
	VariantSharpened
	VariantThreshold
	VariantInverted
)

var variantNames = [...]string{"original", "upscaled", "sharpened", "threshold", "inverted"}

func (k VariantKind) String() string {
	if int(k) < len(variantNames) {
		return variantNames[k]
	}
	return "unknown"
}

// Variant is one rendering of an input buffer. Err is set when the
// rendering could not be produced; Image is then nil.
type Variant struct {
	Kind  VariantKind
	Image image.Image
	Err   error
}

// shouldUpscale reports whether the upscaled variant applies to a w×h input.
func (c Config) shouldUpscale(w, h int) bool {
	return c.UpscaleFactor != 1.0 && max(w, h) < c.UpscaleMaxSide
}

// Variants yields the preprocessing renderings of img in order: original,
// upscaled (only for small inputs), sharpened grayscale, adaptive threshold
// and inverted threshold. Each rendering is computed when it is reached,
// so a consumer that stops early pays only for what it used. The sequence
// is a pure function of img and can be ranged over repeatedly.
func (c Config) Variants(img image.Image) iter.Seq[Variant] {
	return func(yield func(Variant) bool) {
		if utils.IsEmpty(img) {
			c.yieldFailed(yield, 0, 0, ErrEmptyImage)
			return
		}

		if !yield(Variant{Kind: VariantOriginal, Image: img}) {
			return
		}

		b := img.Bounds()
		base := img
		if c.shouldUpscale(b.Dx(), b.Dy()) {
			up, err := safely("upscale", func() (image.Image, error) {
				return utils.Scale(img, c.UpscaleFactor), nil
			})
			if !yield(Variant{Kind: VariantUpscaled, Image: up, Err: err}) {
				return
			}
			if err == nil {
				base = up
			}
		}

		sharp, err := safely("sharpen", func() (*image.Gray, error) {
			eq := utils.EqualizeHist(utils.ToGray(base))
			return utils.UnsharpMask(eq, c.SharpenAmount, c.BlurSigma), nil
		})
		if err != nil {
			for _, k := range []VariantKind{VariantSharpened, VariantThreshold, VariantInverted} {
				if !yield(Variant{Kind: k, Err: err}) {
					return
				}
			}
			return
		}
		if !yield(Variant{Kind: VariantSharpened, Image: utils.GrayToNRGBA(sharp)}) {
			return
		}

		thr, err := safely("threshold", func() (*image.Gray, error) {
			return utils.AdaptiveThresholdGaussian(sharp, c.ThresholdBlock, c.ThresholdC)
		})
		if err != nil {
			if yield(Variant{Kind: VariantThreshold, Err: err}) {
				yield(Variant{Kind: VariantInverted, Err: err})
			}
			return
		}
		if !yield(Variant{Kind: VariantThreshold, Image: utils.GrayToNRGBA(thr)}) {
			return
		}

		yield(Variant{Kind: VariantInverted, Image: utils.InvertGray(thr)})
	}
}

// yieldFailed emits every variant kind that a w×h input would produce,
// all carrying err, so failures still occupy their slots in the sequence.
func (c Config) yieldFailed(yield func(Variant) bool, w, h int, err error) {
	kinds := []VariantKind{VariantOriginal}
	if c.shouldUpscale(w, h) {
		kinds = append(kinds, VariantUpscaled)
	}
	kinds = append(kinds, VariantSharpened, VariantThreshold, VariantInverted)
	for _, k := range kinds {
		if !yield(Variant{Kind: k, Err: err}) {
			return
		}
	}
}

// safely runs fn and converts a panic into an ImageProcessingError.
func safely[T any](op string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = &utils.ImageProcessingError{Operation: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
