package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// HeaderAPIKey carries the shared secret expected by the upload service.
const HeaderAPIKey = "x-api-key"

const maxResponseBody = 1 << 20

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient posts objects as multipart forms to an upload service that
// answers with {"file_id": "..."}.
type HTTPClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

// NewHTTPClient creates an HTTP uploader. A non-positive timeout means 20s.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.TrimSpace(cfg.URL),
		apiKey:     cfg.APIKey,
	}
}

// Store uploads obj and returns the service's file id.
func (c *HTTPClient) Store(ctx context.Context, obj Object) (string, error) {
	body, contentType, err := multipartBody(obj)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	return parseFileID(raw)
}

func multipartBody(obj Object) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, obj.filename()))
	h.Set("Content-Type", obj.contentType())

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(obj.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func parseFileID(raw []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	id, ok := payload["file_id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrMissingFileID
	}
	return id, nil
}
