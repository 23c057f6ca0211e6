// Package orientation enumerates the axis-aligned rotations of an image.
package orientation

import (
	"fmt"
	"image"
	"iter"

	"github.com/disintegration/imaging"
)

// Angle is a clockwise rotation in degrees, one of {0, 90, 180, 270}.
type Angle int

const (
	Angle0   Angle = 0
	Angle90  Angle = 90
	Angle180 Angle = 180
	Angle270 Angle = 270
)

// Angles lists the rotations in the order they are tried. An unrotated
// capture is the common case, so 0 comes first.
var Angles = [...]Angle{Angle0, Angle90, Angle180, Angle270}

func (a Angle) String() string {
	return fmt.Sprintf("%d", int(a))
}

// Valid reports whether a is one of the four supported rotations.
func (a Angle) Valid() bool {
	switch a {
	case Angle0, Angle90, Angle180, Angle270:
		return true
	default:
		return false
	}
}

// Rotate returns img rotated clockwise by a. Angle0 returns the input as is;
// every other angle produces a new buffer. Width and height swap for 90 and
// 270.
func Rotate(img image.Image, a Angle) (image.Image, error) {
	switch a {
	case Angle0:
		return img, nil
	case Angle90:
		// imaging rotates counter-clockwise.
		return imaging.Rotate270(img), nil
	case Angle180:
		return imaging.Rotate180(img), nil
	case Angle270:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("unsupported rotation angle %d", int(a))
	}
}

// Rotations yields each rotation of img in Angles order. Rotated buffers
// are produced lazily, so stopping early skips the remaining work. An
// angle whose rotation fails is yielded with a nil image.
func Rotations(img image.Image) iter.Seq2[Angle, image.Image] {
	return func(yield func(Angle, image.Image) bool) {
		for _, a := range Angles {
			if !yield(a, tryRotate(img, a)) {
				return
			}
		}
	}
}

func tryRotate(img image.Image, a Angle) (out image.Image) {
	if img == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	out, err := Rotate(img, a)
	if err != nil {
		return nil
	}
	return out
}
