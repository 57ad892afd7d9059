package corpus

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
)

// Annotator loads the ground-truth regions of one image.
type Annotator interface {
	Annotate(ctx context.Context, imageID string) (*models.Segmentation, error)
}

// MaskExtractor rasterizes a region set into a mask of the given size.
type MaskExtractor interface {
	ToMask(regions models.RegionSet, width, height int) (models.MaskAndCount, error)
}

// GoldCache maps image ids to their ground-truth mask and region count.
// It is immutable after BuildGoldCache returns and safe for concurrent reads.
type GoldCache struct {
	ids     []string
	entries map[string]models.MaskAndCount
}

// BuildGoldCache annotates and rasterizes every id exactly once. The first failure
// cancels the remaining work and is returned; no partial cache is produced.
func BuildGoldCache(ctx context.Context, ids []string, annotator Annotator, extractor MaskExtractor, workers int, log logger.Logger) (*GoldCache, error) {
	if len(ids) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]models.MaskAndCount, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg, err := annotator.Annotate(gctx, id)
			if err != nil {
				return &models.ImageError{ImageID: id, Err: err}
			}
			mc, err := extractor.ToMask(seg.Regions, seg.Width, seg.Height)
			if err != nil {
				return &models.ImageError{ImageID: id, Err: err}
			}
			results[i] = mc
			log.Debug("GoldCache", "gold standard loaded", map[string]interface{}{
				"image":   id,
				"regions": mc.Count,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build gold standard cache: %w", err)
	}

	cache := &GoldCache{
		ids:     append([]string(nil), ids...),
		entries: make(map[string]models.MaskAndCount, len(ids)),
	}
	for i, id := range ids {
		cache.entries[id] = results[i]
	}

	log.Info("GoldCache", "gold standard cache built", map[string]interface{}{
		"images": len(ids),
	})
	return cache, nil
}

// Get returns the gold entry for id.
func (c *GoldCache) Get(id string) (models.MaskAndCount, error) {
	mc, ok := c.entries[id]
	if !ok {
		return models.MaskAndCount{}, fmt.Errorf("%w: %s", models.ErrMissingGoldStandard, id)
	}
	return mc, nil
}

// IDs returns the corpus order the cache was built with.
func (c *GoldCache) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Len is the number of cached images.
func (c *GoldCache) Len() int {
	return len(c.ids)
}
