// Package barcode decodes 1D and 2D symbols from images.
//
// The default backend is built on gozxing and tries QR, Data Matrix, Aztec
// and the common 1D symbologies in that order, returning the first symbol
// that decodes. Callers that only care about text can use FirstText.
package barcode
