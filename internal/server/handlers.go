package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/rs/zerolog"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// newDecodeResponse maps a pipeline outcome onto the wire shape. An error
// always wins and its text becomes the message.
func newDecodeResponse(res *pipeline.DecodeResult, err error) DecodeResponse {
	if err != nil {
		return failure(err.Error())
	}
	if res == nil {
		return failure("empty decode result")
	}

	switch res.Status {
	case pipeline.StatusFound:
		text := res.Text
		return DecodeResponse{Success: true, Data: &text, FileID: res.FileID}
	case pipeline.StatusInvalidImage:
		return failure(MessageInvalidImage)
	default:
		return failure(MessageNotFound)
	}
}

func failure(message string) DecodeResponse {
	return DecodeResponse{Success: false, Message: &message}
}

// outcomeLabel names a decode response for metrics.
func outcomeLabel(res *pipeline.DecodeResult, err error) string {
	switch {
	case err != nil || res == nil:
		return "error"
	default:
		return res.Status.String()
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}
