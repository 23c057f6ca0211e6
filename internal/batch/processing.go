package batch

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
)

// Decoder runs one upload through the search.
type Decoder interface {
	ProcessUpload(ctx context.Context, up pipeline.Upload) (*pipeline.DecodeResult, error)
}

// FileResult is the outcome for one input file.
type FileResult struct {
	File      string                  `json:"file"`
	Status    string                  `json:"status"`
	Text      string                  `json:"text,omitempty"`
	FileID    *string                 `json:"file_id,omitempty"`
	Candidate *pipeline.CandidateInfo `json:"candidate,omitempty"`
	Attempts  int                     `json:"attempts"`
	Duration  time.Duration           `json:"duration_ns"`
	Error     string                  `json:"error,omitempty"`

	err error
}

// StatusError marks a file that could not be processed at all.
const StatusError = "error"

// Err returns the processing error, if any.
func (r FileResult) Err() error { return r.err }

// Found reports whether a symbol was decoded.
func (r FileResult) Found() bool { return r.Status == pipeline.StatusFound.String() }

// ProcessFile reads path and decodes it with dec. Read and pipeline errors
// are recorded on the result and also returned.
func ProcessFile(ctx context.Context, dec Decoder, path string) (FileResult, error) {
	start := time.Now()
	out := FileResult{File: path}

	fail := func(err error) (FileResult, error) {
		out.Status = StatusError
		out.Error = err.Error()
		out.err = err
		out.Duration = time.Since(start)
		return out, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the command line
	if err != nil {
		return fail(fmt.Errorf("failed to read %s: %w", path, err))
	}

	res, err := dec.ProcessUpload(ctx, pipeline.Upload{
		Data:        data,
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	})
	if err != nil {
		return fail(fmt.Errorf("decode failed for %s: %w", path, err))
	}

	out.Status = res.Status.String()
	out.Text = res.Text
	out.FileID = res.FileID
	if res.Search != nil {
		out.Attempts = res.Search.Attempts
		out.Candidate = res.Search.Candidate
	}
	out.Duration = time.Since(start)
	return out, nil
}
