package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/barscan/internal/barcode"
	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/MeKo-Tech/barscan/internal/upload"
)

const maskedSecret = "********"

const (
	// requestMargin is kept free of search and upload time in every request
	// for reading the body, decoding the input and writing the reply.
	requestMargin = 10 * time.Second

	minSearchTimeout = 5 * time.Second
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	search := pipeline.DefaultConfig()
	return Config{
		Verbose: false,
		Server: ServerConfig{
			Host:                 "localhost",
			Port:                 8080,
			CORSOrigin:           "*",
			MaxUploadMB:          20,
			TimeoutSec:           60,
			ReadHeaderTimeoutSec: 10,
			ShutdownTimeoutSec:   10,
		},
		Upload: UploadConfig{
			Backend:        upload.BackendHTTP,
			TimeoutSeconds: int(search.UploadTimeout / time.Second),
			S3: S3Config{
				Bucket: "barscan-uploads",
				Prefix: "uploads",
			},
		},
		Search: SearchConfig{
			UpscaleFactor:  search.UpscaleFactor,
			UpscaleMaxSide: search.UpscaleMaxSide,
			SharpenAmount:  search.SharpenAmount,
			BlurSigma:      search.BlurSigma,
			ThresholdBlock: search.ThresholdBlock,
			ThresholdC:     search.ThresholdC,
			TryHarder:      search.Barcode.TryHarder,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			Backend:           "memory",
			RequestsPerMinute: 120,
			Burst:             20,
			RedisAddr:         "localhost:6379",
			KeyPrefix:         "barscan:ratelimit:",
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "barscan",
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Log.Level, strings.Join(validLogLevels, ", "))
	}
	if err := oneOf("log format", c.Log.Format, "json", "console"); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if err := oneOf("upload backend", c.Upload.Backend, upload.BackendHTTP, upload.BackendS3, upload.BackendNone); err != nil {
		return err
	}
	if c.Upload.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid upload timeout: %d (must be positive)", c.Upload.TimeoutSeconds)
	}
	if strings.EqualFold(c.Upload.Backend, upload.BackendS3) {
		if c.Upload.S3.Endpoint == "" || c.Upload.S3.Bucket == "" {
			return fmt.Errorf("s3 upload backend requires endpoint and bucket")
		}
	}

	if err := c.ToPipelineConfig().Validate(); err != nil {
		return fmt.Errorf("invalid search config: %w", err)
	}
	if c.Search.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid search timeout: %d (must not be negative)", c.Search.TimeoutSeconds)
	}
	if _, unknown := barcode.ParseFormats(c.Search.Formats); len(unknown) > 0 {
		return fmt.Errorf("unknown barcode formats: %s", strings.Join(unknown, ", "))
	}

	if c.RateLimit.Enabled {
		if err := oneOf("rate limit backend", c.RateLimit.Backend, "memory", "redis"); err != nil {
			return err
		}
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("invalid requests per minute: %d (must be positive)", c.RateLimit.RequestsPerMinute)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid burst: %d (must be positive)", c.RateLimit.Burst)
		}
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	return oneOf("tracing exporter", c.Tracing.Exporter, "none", "stdout", "otlp")
}

// ToPipelineConfig converts the config to the search pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	formats, _ := barcode.ParseFormats(c.Search.Formats)
	return pipeline.Config{
		UpscaleFactor:  c.Search.UpscaleFactor,
		UpscaleMaxSide: c.Search.UpscaleMaxSide,
		SharpenAmount:  c.Search.SharpenAmount,
		BlurSigma:      c.Search.BlurSigma,
		ThresholdBlock: c.Search.ThresholdBlock,
		ThresholdC:     c.Search.ThresholdC,
		Barcode: barcode.Options{
			Formats:   formats,
			TryHarder: c.Search.TryHarder,
		},
		UploadTimeout: c.UploadTimeout(),
		SearchTimeout: time.Duration(c.Search.TimeoutSeconds) * time.Second,
	}
}

// ToUploadConfig converts the config to the uploader configuration.
func (c *Config) ToUploadConfig() upload.Config {
	return upload.Config{
		Backend: strings.ToLower(c.Upload.Backend),
		URL:     c.Upload.URL,
		APIKey:  c.Upload.APIKey,
		Timeout: c.UploadTimeout(),
		S3: upload.S3Config{
			Endpoint:  c.Upload.S3.Endpoint,
			AccessKey: c.Upload.S3.AccessKey,
			SecretKey: c.Upload.S3.SecretKey,
			Bucket:    c.Upload.S3.Bucket,
			UseSSL:    c.Upload.S3.UseSSL,
			Prefix:    c.Upload.S3.Prefix,
		},
	}
}

// UploadTimeout returns the upload timeout as a duration.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}

// ServerSearchTimeout bounds one search inside a server request. An explicit
// search.timeout_seconds wins; otherwise it is what remains of the server
// timeout after the upload timeout and the request margin, never less than
// minSearchTimeout.
func (c *Config) ServerSearchTimeout() time.Duration {
	if c.Search.TimeoutSeconds > 0 {
		return time.Duration(c.Search.TimeoutSeconds) * time.Second
	}
	budget := time.Duration(c.Server.TimeoutSec)*time.Second - c.UploadTimeout() - requestMargin
	return max(budget, minSearchTimeout)
}

// ServerWriteTimeout is the write deadline of the HTTP server. It always
// leaves room for a full search, a full upload and the request margin, so a
// slow request still gets its reply.
func (c *Config) ServerWriteTimeout() time.Duration {
	need := c.ServerSearchTimeout() + c.UploadTimeout() + requestMargin
	return max(time.Duration(c.Server.TimeoutSec)*time.Second, need)
}

// Masked returns a copy with secrets replaced, for display.
func (c Config) Masked() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return maskedSecret
	}
	c.Upload.APIKey = mask(c.Upload.APIKey)
	c.Upload.S3.AccessKey = mask(c.Upload.S3.AccessKey)
	c.Upload.S3.SecretKey = mask(c.Upload.S3.SecretKey)
	c.RateLimit.RedisPassword = mask(c.RateLimit.RedisPassword)
	c.Search.Formats = slices.Clone(c.Search.Formats)
	return c
}

func oneOf(name, value string, valid ...string) error {
	for _, v := range valid {
		if strings.EqualFold(v, value) {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %s (must be one of: %s)", name, value, strings.Join(valid, ", "))
}
