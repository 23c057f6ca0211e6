package server

import (
	"context"
	"net/http"
	"time"

	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Messages returned to clients for the expected failure outcomes.
const (
	MessageInvalidImage = "Imagem inválida ou formato não suportado."
	MessageNotFound     = "QR não encontrado."
)

// decoder is what the server needs from the pipeline.
type decoder interface {
	ProcessUpload(ctx context.Context, up pipeline.Upload) (*pipeline.DecodeResult, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	decoder     decoder
	corsOrigin  string
	maxUploadMB int64
	version     string
	rateLimiter Limiter
	rateLimit   int
	logger      zerolog.Logger
	tracer      trace.Tracer

	wsReadTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	CORSOrigin  string
	MaxUploadMB int64
	Version     string
	// RateLimiter is optional; nil disables throttling.
	RateLimiter       Limiter
	RequestsPerMinute int
	Logger            zerolog.Logger
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// DecodeResponse is the body of every decode answer. FileID is always
// serialized, as null when nothing was archived.
type DecodeResponse struct {
	Success bool    `json:"success"`
	Data    *string `json:"data,omitempty"`
	Message *string `json:"message,omitempty"`
	FileID  *string `json:"file_id"`
}

// NewServer creates a server that answers decode requests with dec.
func NewServer(config Config, dec decoder) *Server {
	maxUploadMB := config.MaxUploadMB
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &Server{
		decoder:     dec,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: maxUploadMB,
		version:     config.Version,
		rateLimiter: config.RateLimiter,
		rateLimit:   config.RequestsPerMinute,
		logger:      config.Logger,
		tracer:      otel.Tracer("barscan/server"),

		wsReadTimeout: defaultWSReadTimeout,
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/api/qr/decode", s.corsMiddleware(s.rateLimitMiddleware(s.decodeHandler)))
	mux.HandleFunc("/ws/qr/decode", s.corsMiddleware(s.rateLimitMiddleware(s.decodeWebSocketHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed mux wrapped in the request-scoped middleware:
// panic recovery, request IDs and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.recoverMiddleware(s.requestIDMiddleware(s.tracingMiddleware(mux)))
}
