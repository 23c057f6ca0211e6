package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/barscan/internal/barcode"
	"github.com/MeKo-Tech/barscan/internal/upload"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the parameters of the candidate search.
type Config struct {
	// Upscaling is applied only when the longer side is below UpscaleMaxSide.
	UpscaleFactor  float64
	UpscaleMaxSide int

	// Unsharp mask: SharpenAmount*eq - (SharpenAmount-1)*blur(eq, BlurSigma).
	SharpenAmount float64
	BlurSigma     float64

	// Adaptive Gaussian threshold window and offset.
	ThresholdBlock int
	ThresholdC     float64

	Barcode       barcode.Options
	UploadTimeout time.Duration
	// SearchTimeout bounds one candidate search; zero leaves it unbounded.
	// A search that runs out of time ends as not found.
	SearchTimeout time.Duration
}

// DefaultConfig returns the stock search parameters.
func DefaultConfig() Config {
	return Config{
		UpscaleFactor:  1.6,
		UpscaleMaxSide: 1400,
		SharpenAmount:  1.6,
		BlurSigma:      1.0,
		ThresholdBlock: 31,
		ThresholdC:     5,
		Barcode:        barcode.Options{TryHarder: true},
		UploadTimeout:  20 * time.Second,
	}
}

// Validate checks that the parameters describe a usable search.
func (c Config) Validate() error {
	if c.UpscaleFactor <= 0 {
		return fmt.Errorf("upscale factor must be > 0, got %v", c.UpscaleFactor)
	}
	if c.UpscaleMaxSide < 0 {
		return fmt.Errorf("upscale max side must be >= 0, got %d", c.UpscaleMaxSide)
	}
	if c.SharpenAmount < 1 {
		return fmt.Errorf("sharpen amount must be >= 1, got %v", c.SharpenAmount)
	}
	if c.BlurSigma <= 0 {
		return fmt.Errorf("blur sigma must be > 0, got %v", c.BlurSigma)
	}
	if c.ThresholdBlock < 3 || c.ThresholdBlock%2 == 0 {
		return fmt.Errorf("threshold block must be odd and >= 3, got %d", c.ThresholdBlock)
	}
	if c.UploadTimeout <= 0 {
		return errors.New("upload timeout must be > 0")
	}
	if c.SearchTimeout < 0 {
		return fmt.Errorf("search timeout must be >= 0, got %v", c.SearchTimeout)
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	backend  barcode.Backend
	uploader upload.Uploader
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithUpscale sets the upscale factor and the size limit above which
// upscaling is skipped.
func (b *Builder) WithUpscale(factor float64, maxSide int) *Builder {
	if factor > 0 {
		b.cfg.UpscaleFactor = factor
	}
	if maxSide >= 0 {
		b.cfg.UpscaleMaxSide = maxSide
	}
	return b
}

// WithSharpen sets the unsharp mask parameters.
func (b *Builder) WithSharpen(amount, sigma float64) *Builder {
	if amount >= 1 {
		b.cfg.SharpenAmount = amount
	}
	if sigma > 0 {
		b.cfg.BlurSigma = sigma
	}
	return b
}

// WithThreshold sets the adaptive threshold block size and offset.
func (b *Builder) WithThreshold(block int, c float64) *Builder {
	if block > 0 {
		b.cfg.ThresholdBlock = block
	}
	b.cfg.ThresholdC = c
	return b
}

// WithFormats restricts the symbologies the decoder looks for.
func (b *Builder) WithFormats(formats []barcode.Format) *Builder {
	b.cfg.Barcode.Formats = formats
	return b
}

// WithTryHarder toggles the slower, more thorough decoder mode.
func (b *Builder) WithTryHarder(enabled bool) *Builder {
	b.cfg.Barcode.TryHarder = enabled
	return b
}

// WithBackend overrides the barcode decoder.
func (b *Builder) WithBackend(backend barcode.Backend) *Builder {
	b.backend = backend
	return b
}

// WithUploader sets where original uploads are archived after a hit.
func (b *Builder) WithUploader(u upload.Uploader) *Builder {
	b.uploader = u
	return b
}

// WithUploadTimeout bounds each archive call.
func (b *Builder) WithUploadTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.UploadTimeout = d
	}
	return b
}

// WithSearchTimeout bounds each candidate search. Zero disables the bound.
func (b *Builder) WithSearchTimeout(d time.Duration) *Builder {
	if d >= 0 {
		b.cfg.SearchTimeout = d
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and returns a ready Pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	backend := b.backend
	if backend == nil {
		backend = barcode.NewBackend()
	}
	uploader := b.uploader
	if uploader == nil {
		uploader = upload.Disabled{}
	}
	return &Pipeline{
		cfg:      b.cfg,
		backend:  backend,
		uploader: uploader,
		tracer:   otel.Tracer("barscan/pipeline"),
	}, nil
}

// Pipeline runs the candidate search and archives hits. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	backend  barcode.Backend
	uploader upload.Uploader
	tracer   trace.Tracer
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }
