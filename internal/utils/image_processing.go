package utils

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// IsEmpty reports whether img is nil or has no pixels.
func IsEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// CropRect returns a copy of the region r, given in coordinates relative to
// the image origin. Regions outside the image are clipped; an empty result
// is a zero-sized image, never nil.
func CropRect(img image.Image, r image.Rectangle) *image.NRGBA {
	b := img.Bounds()
	return imaging.Crop(img, r.Add(b.Min))
}

// Scale resizes img by factor using cubic interpolation.
func Scale(img image.Image, factor float64) *image.NRGBA {
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	return imaging.Resize(img, w, h, imaging.CatmullRom)
}

// ToGray converts img to a single channel using BT.601 luma weights.
func ToGray(img image.Image) *image.Gray {
	return grayFromNRGBA(imaging.Grayscale(img))
}

// GrayToNRGBA replicates a gray image into three color channels.
func GrayToNRGBA(g *image.Gray) *image.NRGBA {
	return imaging.Clone(g)
}

// InvertGray returns the bitwise inverse of g as a three channel image.
func InvertGray(g *image.Gray) *image.NRGBA {
	return imaging.Invert(g)
}

// GaussianBlurGray blurs g with the given sigma.
func GaussianBlurGray(g *image.Gray, sigma float64) *image.Gray {
	return grayFromNRGBA(imaging.Blur(g, sigma))
}

// EqualizeHist spreads the gray levels of g over the full 0..255 range
// using the cumulative histogram. A flat image is returned unchanged.
func EqualizeHist(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	total := b.Dx() * b.Dy()
	if total == 0 {
		return out
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}

	first := 0
	for first < 255 && hist[first] == 0 {
		first++
	}

	var lut [256]uint8
	if hist[first] == total {
		for i := range lut {
			lut[i] = uint8(first) //nolint:gosec // G115: first is a histogram index
		}
	} else {
		scale := 255.0 / float64(total-hist[first])
		sum := 0
		for i := first + 1; i < 256; i++ {
			sum += hist[i]
			lut[i] = saturate(float64(sum) * scale)
		}
	}

	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = lut[src[x]]
		}
	}
	return out
}

// UnsharpMask computes amount*g - (amount-1)*blur(g, sigma), saturated to
// the 0..255 range.
func UnsharpMask(g *image.Gray, amount, sigma float64) *image.Gray {
	blurred := GaussianBlurGray(g, sigma)
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		bl := blurred.Pix[blurred.PixOffset(0, y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = saturate(amount*float64(src[x]) - (amount-1)*float64(bl[x]))
		}
	}
	return out
}

// GaussianSigmaForBlock returns the sigma of the Gaussian window used for a
// block of the given size.
func GaussianSigmaForBlock(blockSize int) float64 {
	return 0.3*(float64(blockSize-1)*0.5-1) + 0.8
}

// AdaptiveThresholdGaussian binarizes g against a Gaussian weighted local
// mean: a pixel is white when it is brighter than mean-c, black otherwise.
func AdaptiveThresholdGaussian(g *image.Gray, blockSize int, c float64) (*image.Gray, error) {
	if blockSize < 3 || blockSize%2 == 0 {
		return nil, &ImageProcessingError{
			Operation: "adaptive_threshold",
			Err:       fmt.Errorf("block size must be odd and >= 3, got %d", blockSize),
		}
	}

	mean := GaussianBlurGray(g, GaussianSigmaForBlock(blockSize))
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		m := mean.Pix[mean.PixOffset(0, y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			if float64(src[x]) > float64(m[x])-c {
				dst[x] = 255
			}
		}
	}
	return out, nil
}

func grayFromNRGBA(n *image.NRGBA) *image.Gray {
	b := n.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := n.Pix[n.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = src[x*4]
		}
	}
	return out
}

func saturate(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
