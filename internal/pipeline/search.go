package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/MeKo-Tech/barscan/internal/barcode"
	"github.com/MeKo-Tech/barscan/internal/utils"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SearchResult is the outcome of one candidate search.
type SearchResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text,omitempty"`
	// Candidate is the winning combination, nil when nothing was found.
	Candidate *CandidateInfo `json:"candidate,omitempty"`
	// Attempts counts decoder invocations; Evaluated counts every
	// candidate visited, including ones that failed to render.
	Attempts  int           `json:"attempts"`
	Evaluated int           `json:"evaluated"`
	Duration  time.Duration `json:"duration"`
	// TimedOut is set when the search deadline ended the walk early.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Search walks the candidates of img in order and returns on the first one
// the decoder reads. Candidates that fail to render, are empty, or make the
// decoder fail are treated as misses. The only error returned is the
// context's, together with the partial result.
func (p *Pipeline) Search(ctx context.Context, img image.Image) (*SearchResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.search")
	defer span.End()

	start := time.Now()
	res := &SearchResult{}
	logger := zerolog.Ctx(ctx)

	finish := func(outcome string) {
		res.Duration = time.Since(start)
		searchCandidates.WithLabelValues(outcome).Observe(float64(res.Attempts))
		searchDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
		span.SetAttributes(
			attribute.Int("search.attempts", res.Attempts),
			attribute.Int("search.evaluated", res.Evaluated),
			attribute.Bool("search.found", res.Found),
		)
	}

	for cand := range p.cfg.Candidates(img) {
		if err := ctx.Err(); err != nil {
			outcome := "cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = "timeout"
			}
			finish(outcome)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			return res, err
		}
		res.Evaluated++

		if cand.Err != nil {
			candidateFailures.WithLabelValues(cand.Variant.String()).Inc()
			logger.Debug().Err(cand.Err).Stringer("candidate", cand.Info()).Msg("candidate skipped")
			continue
		}
		if utils.IsEmpty(cand.Image) {
			continue
		}

		res.Attempts++
		text, ok := barcode.FirstText(ctx, p.backend, cand.Image, p.cfg.Barcode)
		if !ok {
			continue
		}

		info := cand.Info()
		res.Found = true
		res.Text = text
		res.Candidate = &info
		finish("found")
		span.SetAttributes(
			attribute.Int("search.angle", info.Angle),
			attribute.String("search.crop", info.Crop),
			attribute.String("search.variant", info.Variant),
		)
		logger.Debug().
			Int("attempts", res.Attempts).
			Stringer("candidate", info).
			Dur("duration", res.Duration).
			Msg("symbol decoded")
		return res, nil
	}

	finish("not_found")
	logger.Debug().
		Int("attempts", res.Attempts).
		Int("evaluated", res.Evaluated).
		Dur("duration", res.Duration).
		Msg("no symbol found")
	return res, nil
}
