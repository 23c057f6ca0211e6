package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/rs/zerolog"
)

const (
	imageField      = "image"
	defaultFilename = "upload.jpg"
)

var errNoFile = errors.New("no file provided")

// decodeHandler answers POST /api/qr/decode. Every outcome, including
// unreadable uploads and internal failures, is reported with status 200
// and a JSON body; only a wrong method is rejected at the HTTP level.
func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	logger := zerolog.Ctx(r.Context())

	up, err := s.readUpload(w, r)
	if err != nil {
		logger.Info().Err(err).Msg("rejected upload")
		decodeRequestsTotal.WithLabelValues("http", "error").Inc()
		writeJSON(w, r, http.StatusOK, failure(err.Error()))
		return
	}
	writeJSON(w, r, http.StatusOK, s.decode(r.Context(), "http", up, start))
}

// decode runs one upload through the pipeline and records the outcome
// under the given transport label.
func (s *Server) decode(ctx context.Context, transport string, up pipeline.Upload, start time.Time) DecodeResponse {
	logger := zerolog.Ctx(ctx)
	uploadSizeBytes.Observe(float64(len(up.Data)))

	res, err := s.decoder.ProcessUpload(ctx, up)
	if err != nil {
		logger.Error().Err(err).Str("filename", up.Filename).Msg("decode failed")
	}

	outcome := outcomeLabel(res, err)
	decodeRequestsTotal.WithLabelValues(transport, outcome).Inc()
	decodeDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	logger.Info().
		Str("transport", transport).
		Str("filename", up.Filename).
		Int("bytes", len(up.Data)).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("decode request")

	return newDecodeResponse(res, err)
}

// readUpload extracts the uploaded file. The "image" field is preferred;
// otherwise the first file part of the form, in wire order, is used.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	mr, err := r.MultipartReader()
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("failed to parse form data: %w", err)
	}

	var fallback *pipeline.Upload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pipeline.Upload{}, s.formError(err)
		}

		isImage := part.FormName() == imageField
		if !isImage && (part.FileName() == "" || fallback != nil) {
			continue
		}

		up, err := readPart(part)
		if err != nil {
			return pipeline.Upload{}, s.formError(err)
		}
		if isImage {
			return up, nil
		}
		fallback = &up
	}

	if fallback == nil {
		return pipeline.Upload{}, errNoFile
	}
	return *fallback, nil
}

func readPart(part *multipart.Part) (pipeline.Upload, error) {
	defer func() { _ = part.Close() }()

	data, err := io.ReadAll(part)
	if err != nil {
		return pipeline.Upload{}, err
	}

	filename := strings.TrimSpace(part.FileName())
	if filename == "" {
		filename = defaultFilename
	}
	return pipeline.Upload{
		Data:        data,
		Filename:    filename,
		ContentType: part.Header.Get("Content-Type"),
	}, nil
}

func (s *Server) formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("file too large (max %d MB)", s.maxUploadMB)
	}
	return fmt.Errorf("failed to read form data: %w", err)
}
