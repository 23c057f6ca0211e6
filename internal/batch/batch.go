// Package batch decodes many local images in parallel.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoFiles is returned when discovery finds nothing to process.
var ErrNoFiles = errors.New("no image files found")

// Result holds the result of batch processing. Results are in the same
// order as the discovered files.
type Result struct {
	Results     []FileResult
	Duration    time.Duration
	WorkerCount int
}

// ProcessBatch discovers images under paths and decodes them with at most
// config.Workers searches running at once. Each search is still
// sequential. Unless ContinueOnError is set, the first failing file stops
// the batch.
func ProcessBatch(ctx context.Context, dec Decoder, paths []string, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	files, err := discoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	logger := zerolog.Ctx(ctx)
	logger.Debug().Int("files", len(files)).Int("workers", config.Workers).Msg("starting batch")

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	startTime := time.Now()
	for i, path := range files {
		g.Go(func() error {
			res, err := ProcessFile(gctx, dec, path)
			results[i] = res
			if config.OnResult != nil {
				config.OnResult(res)
			}
			if err != nil {
				logger.Warn().Err(err).Str("file", path).Msg("file failed")
				if !config.ContinueOnError {
					return err
				}
			}
			return nil
		})
	}
	err = g.Wait()
	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	return &Result{
		Results:     results,
		Duration:    duration,
		WorkerCount: config.Workers,
	}, nil
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Results, format)
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}

	_, err = fmt.Fprint(w, output)
	return err
}

// Stats summarizes a batch run.
type Stats struct {
	Total            int
	Found            int
	NotFound         int
	InvalidImages    int
	Failed           int
	WorkerCount      int
	TotalDuration    time.Duration
	AveragePerImage  time.Duration
	ThroughputPerSec float64
}

// Stats computes summary statistics.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Results), WorkerCount: r.WorkerCount, TotalDuration: r.Duration}
	for _, res := range r.Results {
		switch res.Status {
		case pipeline.StatusFound.String():
			s.Found++
		case pipeline.StatusNotFound.String():
			s.NotFound++
		case pipeline.StatusInvalidImage.String():
			s.InvalidImages++
		default:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.AveragePerImage = r.Duration / time.Duration(s.Total)
	}
	if r.Duration > 0 {
		s.ThroughputPerSec = float64(s.Total) / r.Duration.Seconds()
	}
	return s
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", stats.Total)
	_, _ = fmt.Fprintf(w, "  Found: %d\n", stats.Found)
	_, _ = fmt.Fprintf(w, "  Not found: %d\n", stats.NotFound)
	_, _ = fmt.Fprintf(w, "  Invalid images: %d\n", stats.InvalidImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Failed)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", stats.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", stats.ThroughputPerSec)
}
