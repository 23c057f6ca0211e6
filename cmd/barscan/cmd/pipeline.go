package cmd

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/barscan/internal/config"
	"github.com/MeKo-Tech/barscan/internal/pipeline"
	"github.com/MeKo-Tech/barscan/internal/upload"
)

// buildPipeline creates a search pipeline from cfg. Without archive the
// uploader is disabled regardless of the upload settings. A positive
// searchTimeout replaces the configured search bound.
func buildPipeline(cfg *config.Config, archive bool, searchTimeout time.Duration) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().WithConfig(cfg.ToPipelineConfig())
	if searchTimeout > 0 {
		b = b.WithSearchTimeout(searchTimeout)
	}

	if archive {
		up, err := upload.New(cfg.ToUploadConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create uploader: %w", err)
		}
		b = b.WithUploader(up)
	}

	p, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, nil
}
