package testutil

import (
	"fmt"
	"image"
	"image/color"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"
)

// QRConfig controls QR fixture generation.
type QRConfig struct {
	Content string
	Size    int // edge length in pixels
	Margin  int // quiet zone in modules
}

// DefaultQRConfig returns a config that produces an easily readable code.
func DefaultQRConfig(content string) QRConfig {
	return QRConfig{Content: content, Size: 240, Margin: 4}
}

// GenerateQR renders content as a black on white QR code.
func GenerateQR(cfg QRConfig) (*image.Gray, error) {
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_MARGIN:           cfg.Margin,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}

	bm, err := qrcode.NewQRCodeWriter().Encode(cfg.Content, gozxing.BarcodeFormat_QR_CODE, cfg.Size, cfg.Size, hints)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	w, h := bm.GetWidth(), bm.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			if bm.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img, nil
}

// MustGenerateQR is GenerateQR for tests with a fixed, valid config.
func MustGenerateQR(content string) *image.Gray {
	img, err := GenerateQR(DefaultQRConfig(content))
	if err != nil {
		panic(err)
	}
	return img
}

// InvertGray returns a light-on-dark copy of g.
func InvertGray(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}
