package pipeline

import (
	"image"
	"iter"

	"github.com/MeKo-Tech/barscan/internal/utils"
)

// CropKind identifies one sub-region of a frame.
type CropKind int

const (
	CropFull CropKind = iota
	CropBottom
	CropCenter
)

var cropNames = [...]string{"full", "bottom", "center"}

func (k CropKind) String() string {
	if int(k) < len(cropNames) {
		return cropNames[k]
	}
	return "unknown"
}

// Crop is one sub-region of a frame. Rect is relative to the frame origin.
type Crop struct {
	Kind  CropKind
	Rect  image.Rectangle
	Image image.Image
	Err   error
}

// CropRect returns the region of a w×h frame covered by kind. Bounds are
// truncated toward zero, so small frames can yield empty rectangles.
func CropRect(kind CropKind, w, h int) image.Rectangle {
	switch kind {
	case CropBottom:
		// Lower 55%: labels usually carry the symbol below the fold.
		return image.Rect(0, int(float64(h)*0.45), w, h)
	case CropCenter:
		return image.Rect(
			int(float64(w)*0.10), int(float64(h)*0.15),
			int(float64(w)*0.90), int(float64(h)*0.85),
		)
	default:
		return image.Rect(0, 0, w, h)
	}
}

// Crops yields the full frame, the bottom region and the centered region
// of img, in that order. Sub-regions are copied and never resized. An empty
// region is yielded as a zero-sized image rather than skipped.
func Crops(img image.Image) iter.Seq[Crop] {
	return func(yield func(Crop) bool) {
		var w, h int
		if img != nil {
			w, h = img.Bounds().Dx(), img.Bounds().Dy()
		}

		for _, kind := range [...]CropKind{CropFull, CropBottom, CropCenter} {
			rect := CropRect(kind, w, h)
			c := Crop{Kind: kind, Rect: rect}

			switch {
			case utils.IsEmpty(img):
				c.Err = ErrEmptyImage
			case kind == CropFull:
				c.Image = img
			default:
				c.Image, c.Err = safely("crop", func() (image.Image, error) {
					return utils.CropRect(img, rect), nil
				})
			}

			if !yield(c) {
				return
			}
		}
	}
}
