package jobs

import (
	"context"
	"fmt"
	"time"

	"carrental/internal/metrics"
	"carrental/internal/storage"

	"github.com/rs/zerolog"
)

// ImageReferences reports whether any car still points at a stored image.
type ImageReferences interface {
	ImageInUse(ctx context.Context, image string) (bool, error)
}

// UploadJanitor removes stored images that no car references once they are
// older than the grace period. Uploads of in-flight requests are younger
// than the grace period and therefore never touched.
type UploadJanitor struct {
	store   storage.ImageStore
	refs    ImageReferences
	grace   time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewUploadJanitor(store storage.ImageStore, refs ImageReferences, grace time.Duration, m *metrics.Metrics, logger zerolog.Logger) *UploadJanitor {
	return &UploadJanitor{
		store:   store,
		refs:    refs,
		grace:   grace,
		metrics: m,
		logger:  logger.With().Str("job", "upload_janitor").Logger(),
	}
}

// Run performs one sweep and returns the number of images removed.
func (j *UploadJanitor) Run(ctx context.Context) (int, error) {
	candidates, err := j.store.ListOlderThan(ctx, j.grace)
	if err != nil {
		return 0, fmt.Errorf("list stored images: %w", err)
	}

	removed := 0
	for _, image := range candidates {
		inUse, err := j.refs.ImageInUse(ctx, image)
		if err != nil {
			return removed, fmt.Errorf("check image %s: %w", image, err)
		}
		if inUse {
			continue
		}
		if err := j.store.Delete(ctx, image); err != nil {
			j.logger.Error().Err(err).Str("image", image).Msg("Failed to remove orphaned image")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.metrics.OrphanedImagesRemoved.Add(float64(removed))
	}
	j.logger.Info().Int("checked", len(candidates)).Int("removed", removed).Msg("Upload janitor sweep finished")
	return removed, nil
}
