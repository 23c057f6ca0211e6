package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/barscan/internal/server"
	"github.com/MeKo-Tech/barscan/internal/telemetry"
	"github.com/MeKo-Tech/barscan/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the decode API",
		Long: `Start an HTTP server that decodes uploaded images.

The server provides the following endpoints:
  POST /api/qr/decode - Decode an uploaded image (multipart field "image")
  GET  /ws/qr/decode  - WebSocket decode stream
  GET  /health        - Health check endpoint
  GET  /metrics       - Prometheus metrics

Examples:
  barscan serve
  barscan serve --port 8080
  barscan serve --host 0.0.0.0 --upload-url https://files.example/upload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}

	f := serveCmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origin")
	f.Int("max-upload-mb", 20, "maximum upload size in MB")
	f.Int("timeout", 60, "request timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.String("upload-backend", "http", "archive backend for decoded originals (http, s3, none)")
	f.String("upload-url", "", "upload service URL for the http backend")
	f.Int("upload-timeout", 20, "upload timeout in seconds")
	f.Int("search-timeout", 0, "search timeout in seconds (0 derives it from --timeout and --upload-timeout)")
	f.Bool("rate-limit", false, "enable per-client rate limiting")
	f.Int("rate-limit-rpm", 120, "requests per minute per client")
	f.Int("rate-limit-burst", 20, "burst size per client")
	f.String("rate-limit-store", "memory", "rate limit store (memory, redis)")
	f.String("redis-addr", "localhost:6379", "redis address for the redis rate limit store")
	f.String("tracing-exporter", "none", "trace exporter (none, stdout, otlp)")
	f.String("otlp-endpoint", "", "OTLP/HTTP endpoint for the otlp exporter")
	f.StringSlice("formats", nil, "restrict decoding to these symbologies (qr, datamatrix, aztec, ean13, code128, ...)")
	f.Bool("try-harder", true, "use the slower, more thorough decoder mode")
	return serveCmd
}

func (a *app) runServe(parent context.Context) error {
	cfg := a.cfg
	logger := a.logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	p, err := buildPipeline(cfg, true, cfg.ServerSearchTimeout())
	if err != nil {
		return err
	}

	limiter, err := server.NewLimiter(ctx, server.RateLimitConfig{
		Enabled:           cfg.RateLimit.Enabled,
		Backend:           cfg.RateLimit.Backend,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		RedisAddr:         cfg.RateLimit.RedisAddr,
		RedisPassword:     cfg.RateLimit.RedisPassword,
		RedisDB:           cfg.RateLimit.RedisDB,
		KeyPrefix:         cfg.RateLimit.KeyPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	if c, ok := limiter.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	srv := server.NewServer(server.Config{
		CORSOrigin:        cfg.Server.CORSOrigin,
		MaxUploadMB:       int64(cfg.Server.MaxUploadMB),
		Version:           version.Version,
		RateLimiter:       limiter,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:            logger,
	}, p)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.TimeoutSec) * time.Second,
		WriteTimeout:      cfg.ServerWriteTimeout(),
		BaseContext:       func(net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("upload_backend", cfg.Upload.Backend).
			Dur("search_timeout", cfg.ServerSearchTimeout()).
			Dur("write_timeout", httpServer.WriteTimeout).
			Bool("rate_limit", limiter != nil).
			Msg("starting decode server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second
	logger.Info().Dur("timeout", shutdownTimeout).Msg("starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info().Msg("graceful shutdown completed")
	return nil
}
