package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/barscan/internal/upload"
	"github.com/MeKo-Tech/barscan/internal/utils"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Status is the terminal state of a decode request.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusInvalidImage
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusInvalidImage:
		return "invalid_image"
	default:
		return "not_found"
	}
}

// Upload is a raw file as received from a client.
type Upload struct {
	Data        []byte
	Filename    string
	ContentType string
}

// DecodeResult is what a decode request produced.
type DecodeResult struct {
	Status Status
	// Text is the cleaned payload; RawText is what the decoder returned.
	Text    string
	RawText string
	// FileID is the archive id of the original bytes, nil when nothing was
	// stored.
	FileID *string
	Search *SearchResult
	Image  utils.ImageMetadata
}

// ProcessUpload decodes the image in up, searches it for a symbol and, on a
// hit, archives the original bytes. Unreadable bytes and empty searches are
// reported through Status; only unexpected failures return an error. A
// panic inside the request is recovered into an error.
func (p *Pipeline) ProcessUpload(ctx context.Context, up Upload) (res *DecodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%v", r)
		}
	}()

	img, meta, decErr := utils.DecodeImage(up.Data)
	if decErr != nil {
		zerolog.Ctx(ctx).Debug().Err(decErr).Int("bytes", len(up.Data)).Msg("input decode failed")
		return &DecodeResult{Status: StatusInvalidImage}, nil
	}
	meta.Path = up.Filename

	searchCtx, cancel := p.searchContext(ctx)
	defer cancel()

	search, err := p.Search(searchCtx, img)
	if err != nil {
		if !errors.Is(context.Cause(searchCtx), ErrSearchTimeout) {
			return nil, err
		}
		search.TimedOut = true
		searchTimeouts.Inc()
		zerolog.Ctx(ctx).Warn().
			Dur("timeout", p.cfg.SearchTimeout).
			Int("attempts", search.Attempts).
			Str("filename", up.Filename).
			Msg("search deadline reached")
		return &DecodeResult{Status: StatusNotFound, Search: search, Image: meta}, nil
	}

	res = &DecodeResult{Status: StatusNotFound, Search: search, Image: meta}
	if !search.Found {
		return res, nil
	}

	res.Status = StatusFound
	res.RawText = search.Text
	res.Text = CleanText(search.Text)
	res.FileID = p.archive(ctx, up)
	return res, nil
}

// ErrSearchTimeout is the cause attached to a search that ran out of time.
var ErrSearchTimeout = errors.New("search timeout")

// searchContext derives the context of one search from the request context.
func (p *Pipeline) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.SearchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, p.cfg.SearchTimeout, ErrSearchTimeout)
}

// archive hands the original bytes to the uploader. It never fails: errors
// are logged and reported as a nil id. The call is bounded by the upload
// timeout and survives cancellation of ctx.
func (p *Pipeline) archive(ctx context.Context, up Upload) (id *string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.UploadTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "upload.store")
	defer span.End()
	span.SetAttributes(attribute.Int("upload.bytes", len(up.Data)))

	logger := zerolog.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			id = nil
			uploadsTotal.WithLabelValues("failed").Inc()
			span.SetStatus(codes.Error, "panic")
			logger.Warn().Interface("panic", r).Msg("upload panicked")
		}
	}()

	fileID, err := p.uploader.Store(ctx, upload.Object{
		Data:        up.Data,
		Filename:    up.Filename,
		ContentType: up.ContentType,
	})
	switch {
	case errors.Is(err, upload.ErrDisabled):
		uploadsTotal.WithLabelValues("disabled").Inc()
		return nil
	case err != nil:
		uploadsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		logger.Warn().Err(err).Str("filename", up.Filename).Msg("upload failed")
		return nil
	case strings.TrimSpace(fileID) == "":
		uploadsTotal.WithLabelValues("failed").Inc()
		logger.Warn().Str("filename", up.Filename).Msg("upload returned an empty id")
		return nil
	}

	uploadsTotal.WithLabelValues("stored").Inc()
	span.SetAttributes(attribute.String("upload.file_id", fileID))
	return &fileID
}
