package pipeline

import (
	"fmt"
	"image"
	"iter"

	"github.com/MeKo-Tech/barscan/internal/orientation"
)

// MaxCandidates bounds the search: 4 rotations × 3 crops × 5 variants.
const MaxCandidates = len(orientation.Angles) * 3 * 5

// Candidate is one (rotation, crop, variant) combination and the buffer it
// maps to. Err is set when the buffer could not be produced.
type Candidate struct {
	Angle   orientation.Angle
	Crop    CropKind
	Variant VariantKind
	Image   image.Image
	Err     error
}

// CandidateInfo describes a candidate without its pixels.
type CandidateInfo struct {
	Angle   int    `json:"angle"`
	Crop    string `json:"crop"`
	Variant string `json:"variant"`
}

// Info returns the descriptor of c.
func (c Candidate) Info() CandidateInfo {
	return CandidateInfo{Angle: int(c.Angle), Crop: c.Crop.String(), Variant: c.Variant.String()}
}

func (i CandidateInfo) String() string {
	return fmt.Sprintf("%d/%s/%s", i.Angle, i.Crop, i.Variant)
}

// Candidates flattens rotation × crop × variant into a single lazy
// sequence: rotations outermost, variants innermost. Nothing is computed
// for candidates past the point where the consumer stops.
func (c Config) Candidates(img image.Image) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for angle, rotated := range orientation.Rotations(img) {
			for crop := range Crops(rotated) {
				for v := range c.Variants(crop.Image) {
					err := v.Err
					if crop.Err != nil {
						err = crop.Err
					}
					cand := Candidate{
						Angle:   angle,
						Crop:    crop.Kind,
						Variant: v.Kind,
						Image:   v.Image,
						Err:     err,
					}
					if !yield(cand) {
						return
					}
				}
			}
		}
	}
}
