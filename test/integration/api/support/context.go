package support

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/MeKo-Tech/barscan/internal/server"
	"github.com/MeKo-Tech/barscan/internal/upload"
	"github.com/rs/zerolog"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Decode server under test
	Server *httptest.Server
	// Fake upload service the pipeline archives to
	Uploads *FakeUploadService

	RateLimitPerMinute int
	UploadTimeout      time.Duration

	// Image prepared by the Given steps
	ImageData []byte
	ImageName string

	// HTTP response state
	LastStatusCode int
	LastBody       map[string]any
	LastRawBody    string
	LastHeaders    http.Header
}

// NewTestContext creates an empty scenario context.
func NewTestContext() *TestContext {
	return &TestContext{UploadTimeout: 2 * time.Second}
}

// ensureServer starts the decode server on first use, wired to the fake
// upload service when one is configured.
func (tc *TestContext) ensureServer() error {
	if tc.Server != nil {
		return nil
	}

	var uploader upload.Uploader = upload.Disabled{}
	if tc.Uploads != nil {
		uploader = upload.NewHTTPClient(upload.HTTPConfig{
			URL:     tc.Uploads.URL(),
			APIKey:  FakeAPIKey,
			Timeout: tc.UploadTimeout,
		})
	}

	p, err := pipeline.NewBuilder().
		WithUploader(uploader).
		WithUploadTimeout(tc.UploadTimeout).
		Build()
	if err != nil {
		return err
	}

	cfg := server.Config{
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		Version:     "integration",
		Logger:      zerolog.Nop(),
	}
	if tc.RateLimitPerMinute > 0 {
		cfg.RateLimiter = server.NewMemoryLimiter(tc.RateLimitPerMinute, tc.RateLimitPerMinute)
		cfg.RequestsPerMinute = tc.RateLimitPerMinute
	}

	tc.Server = httptest.NewServer(server.NewServer(cfg, p).Handler())
	return nil
}

// Cleanup stops every server the scenario started.
func (tc *TestContext) Cleanup() {
	if tc.Server != nil {
		tc.Server.Close()
		tc.Server = nil
	}
	if tc.Uploads != nil {
		tc.Uploads.Close()
		tc.Uploads = nil
	}
}

// FakeAPIKey is the key the pipeline sends to the fake upload service.
const FakeAPIKey = "integration-key"

// ReceivedFile is one multipart upload seen by the fake service.
type ReceivedFile struct {
	Filename    string
	ContentType string
	Data        []byte
	APIKey      string
}

// FakeUploadService mimics the archive endpoint.
type FakeUploadService struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []ReceivedFile
	status   int
	body     string
	delay    time.Duration
}

// NewFakeUploadService answers every upload with status and body.
func NewFakeUploadService(status int, body string) *FakeUploadService {
	f := &FakeUploadService{status: status, body: body}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *FakeUploadService) handle(w http.ResponseWriter, r *http.Request) {
	rec := ReceivedFile{APIKey: r.Header.Get(upload.HeaderAPIKey)}
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		mr := multipart.NewReader(r.Body, params["boundary"])
		if part, err := mr.NextPart(); err == nil {
			rec.Filename = part.FileName()
			rec.ContentType = part.Header.Get("Content-Type")
			rec.Data, _ = io.ReadAll(part)
		}
	}

	f.mu.Lock()
	f.received = append(f.received, rec)
	status, body, delay := f.status, f.body, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// SetDelay makes every answer wait for d.
func (f *FakeUploadService) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Received returns a copy of the uploads seen so far.
func (f *FakeUploadService) Received() []ReceivedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReceivedFile(nil), f.received...)
}

// URL is the upload endpoint.
func (f *FakeUploadService) URL() string { return f.srv.URL + "/upload" }

// Close stops the service.
func (f *FakeUploadService) Close() { f.srv.Close() }
