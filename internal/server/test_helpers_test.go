package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeDecoder records uploads and answers with a fixed outcome.
type fakeDecoder struct {
	mu      sync.Mutex
	uploads []pipeline.Upload

	result *pipeline.DecodeResult
	err    error
	panics any
	delay  time.Duration
}

func (f *fakeDecoder) ProcessUpload(_ context.Context, up pipeline.Upload) (*pipeline.DecodeResult, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, up)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics != nil {
		panic(f.panics)
	}
	return f.result, f.err
}

func (f *fakeDecoder) calls() []pipeline.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Upload(nil), f.uploads...)
}

func found(text string, fileID *string) *pipeline.DecodeResult {
	return &pipeline.DecodeResult{Status: pipeline.StatusFound, Text: text, RawText: "XX" + text, FileID: fileID}
}

func ptr(s string) *string { return &s }

func newTestServer(t *testing.T, dec decoder, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:  "*",
		MaxUploadMB: 1,
		Version:     "test",
		Logger:      zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewServer(cfg, dec)
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a POST with the given file parts in order.
func multipartRequest(t *testing.T, path string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		if f.filename == "" {
			require.NoError(t, mw.WriteField(f.field, string(f.data)))
			continue
		}
		part, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// decodeBody parses a response body into a generic map so key presence
// can be asserted.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
