package barcode

import (
	"context"
	"errors"
	"image"
	"strings"
)

// ErrNotFound is returned when no reader recognises a symbol in the image.
var ErrNotFound = errors.New("barcode: no symbol found")

// ErrEmptyImage is returned for nil or zero-sized input.
var ErrEmptyImage = errors.New("barcode: empty image")

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatCode128
	FormatCode39
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

var formatNames = map[Format]string{
	FormatQR:         "qr",
	FormatDataMatrix: "datamatrix",
	FormatAztec:      "aztec",
	FormatCode128:    "code128",
	FormatCode39:     "code39",
	FormatEAN8:       "ean8",
	FormatEAN13:      "ean13",
	FormatUPCA:       "upca",
	FormatUPCE:       "upce",
	FormatITF:        "itf",
	FormatCodabar:    "codabar",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}

// ParseFormat maps a user supplied symbology name to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qr", "qrcode", "qr_code":
		return FormatQR, true
	case "datamatrix", "data-matrix", "data_matrix":
		return FormatDataMatrix, true
	case "aztec":
		return FormatAztec, true
	case "code128", "code-128":
		return FormatCode128, true
	case "code39", "code-39":
		return FormatCode39, true
	case "ean8", "ean-8":
		return FormatEAN8, true
	case "ean13", "ean-13":
		return FormatEAN13, true
	case "upca", "upc-a":
		return FormatUPCA, true
	case "upce", "upc-e":
		return FormatUPCE, true
	case "itf", "interleaved2of5", "i2/5":
		return FormatITF, true
	case "codabar":
		return FormatCodabar, true
	default:
		return FormatUnknown, false
	}
}

// ParseFormats parses a list of names, returning the names it did not recognise.
func ParseFormats(names []string) ([]Format, []string) {
	var formats []Format
	var unknown []string
	for _, n := range names {
		if f, ok := ParseFormat(n); ok {
			formats = append(formats, f)
		} else {
			unknown = append(unknown, n)
		}
	}
	return formats, unknown
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result represents a decoded barcode.
type Result struct {
	Type   Format
	Value  string
	Points []Point
	BBox   image.Rectangle
}

// Backend is a pluggable barcode decoder implementation.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default gozxing backend.
func NewBackend() Backend { return &gozxingBackend{} }

// FirstText runs the backend and returns the text of the first non-empty
// result. Any failure, including a panic inside the backend, reports false.
func FirstText(ctx context.Context, b Backend, img image.Image, opts Options) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	results, err := b.Decode(ctx, img, opts)
	if err != nil {
		return "", false
	}
	for _, r := range results {
		if r.Value != "" {
			return r.Value, true
		}
	}
	return "", false
}
