package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/barscan/internal/barcode"
	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/MeKo-Tech/barscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t, &fakeDecoder{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["time"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeDecoder{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		res     *pipeline.DecodeResult
		err     error
		success bool
		data    *string
		message *string
		fileID  *string
	}{
		{
			name:    "found with file id",
			res:     found("payload", ptr("f-1")),
			success: true,
			data:    ptr("payload"),
			fileID:  ptr("f-1"),
		},
		{
			name:    "found without upload",
			res:     found("payload", nil),
			success: true,
			data:    ptr("payload"),
		},
		{
			name:    "found with empty cleaned text",
			res:     found("", nil),
			success: true,
			data:    ptr(""),
		},
		{
			name:    "invalid image",
			res:     &pipeline.DecodeResult{Status: pipeline.StatusInvalidImage},
			message: ptr(MessageInvalidImage),
		},
		{
			name:    "not found",
			res:     &pipeline.DecodeResult{Status: pipeline.StatusNotFound},
			message: ptr(MessageNotFound),
		},
		{
			name:    "error text wins",
			res:     found("ignored", nil),
			err:     errors.New("disk on fire"),
			message: ptr("disk on fire"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newDecodeResponse(tt.res, tt.err)
			assert.Equal(t, tt.success, got.Success)
			assert.Equal(t, tt.data, got.Data)
			assert.Equal(t, tt.message, got.Message)
			assert.Equal(t, tt.fileID, got.FileID)
		})
	}
}

func TestDecodeHandler_Found(t *testing.T) {
	dec := &fakeDecoder{result: found("hello", ptr("file-42"))}
	srv := newTestServer(t, dec)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/qr/decode",
		formFile{field: "image", filename: "label.png", data: []byte("png-bytes")},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"success": true, "data": "hello", "file_id": "file-42"}, body)

	calls := dec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []byte("png-bytes"), calls[0].Data)
	assert.Equal(t, "label.png", calls[0].Filename)
	assert.Equal(t, "application/octet-stream", calls[0].ContentType)
}

func TestDecodeHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		dec  *fakeDecoder
		want map[string]any
	}{
		{
			name: "found without archive",
			dec:  &fakeDecoder{result: found("x", nil)},
			want: map[string]any{"success": true, "data": "x", "file_id": nil},
		},
		{
			name: "invalid image",
			dec:  &fakeDecoder{result: &pipeline.DecodeResult{Status: pipeline.StatusInvalidImage}},
			want: map[string]any{"success": false, "message": MessageInvalidImage, "file_id": nil},
		},
		{
			name: "not found",
			dec:  &fakeDecoder{result: &pipeline.DecodeResult{Status: pipeline.StatusNotFound}},
			want: map[string]any{"success": false, "message": MessageNotFound, "file_id": nil},
		},
		{
			name: "unexpected error",
			dec:  &fakeDecoder{err: errors.New("context deadline exceeded")},
			want: map[string]any{"success": false, "message": "context deadline exceeded", "file_id": nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.dec)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/qr/decode",
				formFile{field: "image", filename: "a.jpg", data: []byte{1, 2, 3}},
			))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec))
		})
	}
}

func TestDecodeHandler_MethodNotAllowed(t *testing.T) {
	dec := &fakeDecoder{}
	srv := newTestServer(t, dec)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/qr/decode", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, dec.calls())
}

func TestDecodeHandler_FieldSelection(t *testing.T) {
	tests := []struct {
		name     string
		files    []formFile
		wantData string
		wantName string
	}{
		{
			name: "image field preferred over earlier file",
			files: []formFile{
				{field: "doc", filename: "first.png", data: []byte("first")},
				{field: "image", filename: "second.png", data: []byte("second")},
			},
			wantData: "second",
			wantName: "second.png",
		},
		{
			name: "first file part when no image field",
			files: []formFile{
				{field: "note", data: []byte("plain value")},
				{field: "a", filename: "a.png", data: []byte("aaa")},
				{field: "b", filename: "b.png", data: []byte("bbb")},
			},
			wantData: "aaa",
			wantName: "a.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &fakeDecoder{result: &pipeline.DecodeResult{Status: pipeline.StatusNotFound}}
			srv := newTestServer(t, dec)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/qr/decode", tt.files...))

			require.Equal(t, http.StatusOK, rec.Code)
			calls := dec.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantData, string(calls[0].Data))
			assert.Equal(t, tt.wantName, calls[0].Filename)
		})
	}
}

func TestDecodeHandler_RejectedUploads(t *testing.T) {
	t.Run("no file part", func(t *testing.T) {
		dec := &fakeDecoder{}
		srv := newTestServer(t, dec)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/qr/decode",
			formFile{field: "note", data: []byte("hi")},
		))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, errNoFile.Error(), body["message"])
		assert.Contains(t, body, "file_id")
		assert.Empty(t, dec.calls())
	})

	t.Run("not multipart", func(t *testing.T) {
		dec := &fakeDecoder{}
		srv := newTestServer(t, dec)

		req := httptest.NewRequest(http.MethodPost, "/api/qr/decode", strings.NewReader("raw"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["message"], "failed to parse form data")
		assert.Empty(t, dec.calls())
	})

	t.Run("too large", func(t *testing.T) {
		dec := &fakeDecoder{}
		srv := newTestServer(t, dec)

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/qr/decode",
			formFile{field: "image", filename: "big.jpg", data: make([]byte, 2*1024*1024)},
		))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "file too large (max 1 MB)", body["message"])
		assert.Empty(t, dec.calls())
	})
}

func TestDecodeHandler_EmptyFilenameDefaults(t *testing.T) {
	dec := &fakeDecoder{result: &pipeline.DecodeResult{Status: pipeline.StatusNotFound}}
	srv := newTestServer(t, dec)

	req := multipartRequest(t, "/api/qr/decode", formFile{field: "image", data: []byte("bytes")})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	calls := dec.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, defaultFilename, calls[0].Filename)
	assert.Equal(t, "bytes", string(calls[0].Data))
}

// slowBackend never finds a symbol and takes delay per candidate.
type slowBackend struct {
	delay time.Duration
}

func (b slowBackend) Decode(ctx context.Context, _ image.Image, _ barcode.Options) ([]barcode.Result, error) {
	select {
	case <-time.After(b.delay):
		return nil, barcode.ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestDecodeHandler_SlowSearchStillAnswers(t *testing.T) {
	// 60 candidates at 100ms would need 6s, well past the write deadline.
	p, err := pipeline.NewBuilder().
		WithBackend(slowBackend{delay: 100 * time.Millisecond}).
		WithSearchTimeout(300 * time.Millisecond).
		Build()
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(newTestServer(t, p).Handler())
	ts.Config.WriteTimeout = 2 * time.Second
	ts.Start()
	t.Cleanup(ts.Close)

	in := multipartRequest(t, "/api/qr/decode", formFile{
		field:    "image",
		filename: "photo.png",
		data:     testutil.EncodePNG(t, testutil.CreateGradientImage(120, 90)),
	})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/qr/decode", in.Body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", in.Header.Get("Content-Type"))

	start := time.Now()
	resp, err := ts.Client().Do(req)
	require.NoError(t, err, "the connection must not be dropped")
	defer func() { _ = resp.Body.Close() }()
	assert.Less(t, time.Since(start), ts.Config.WriteTimeout)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]any{"success": false, "message": MessageNotFound, "file_id": nil}, body)
}
