// Package upload archives original image bytes after a successful decode.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
	BackendNone = "none"
)

const (
	defaultFilename    = "upload.bin"
	defaultContentType = "application/octet-stream"
)

var (
	// ErrDisabled is returned by the no-op uploader.
	ErrDisabled = errors.New("upload: no backend configured")
	// ErrMissingFileID is returned when the service answers without a usable id.
	ErrMissingFileID = errors.New("upload: response has no file_id")
)

// StatusError reports a non-2xx answer from the upload service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload: service returned status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upload: service returned status=%d: %s", e.StatusCode, e.Body)
}

// Object is one file handed to an Uploader.
type Object struct {
	Data        []byte
	Filename    string
	ContentType string
}

func (o Object) filename() string {
	if strings.TrimSpace(o.Filename) == "" {
		return defaultFilename
	}
	return o.Filename
}

func (o Object) contentType() string {
	if strings.TrimSpace(o.ContentType) == "" {
		return defaultContentType
	}
	return o.ContentType
}

// Uploader stores an object and returns the identifier assigned to it.
type Uploader interface {
	Store(ctx context.Context, obj Object) (string, error)
}

// Disabled is the uploader used when nothing is configured.
type Disabled struct{}

// Store always fails with ErrDisabled.
func (Disabled) Store(context.Context, Object) (string, error) { return "", ErrDisabled }

// S3Config configures the object-store backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// Config selects and configures an upload backend.
type Config struct {
	Backend string
	URL     string
	APIKey  string
	Timeout time.Duration
	S3      S3Config
}

// New returns the uploader named by cfg.Backend. An http backend without a
// URL degrades to Disabled.
func New(cfg Config) (Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendHTTP:
		if strings.TrimSpace(cfg.URL) == "" {
			return Disabled{}, nil
		}
		return NewHTTPClient(HTTPConfig{URL: cfg.URL, APIKey: cfg.APIKey, Timeout: cfg.Timeout}), nil
	case BackendS3:
		return NewS3Store(cfg.S3)
	case BackendNone:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}
