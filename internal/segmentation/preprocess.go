package segmentation

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/processing/deconvolution"
)

// preprocessor turns a corpus image into the grey stain channel the thresholds run
// on. Results are cached per image id and concurrent requests for the same id share
// one decode.
type preprocessor struct {
	imagesDir string
	unmixer   *deconvolution.Unmixer
	timings   *timing.Tracker
	logger    logger.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*models.Gray
}

func newPreprocessor(imagesDir string, unmixer *deconvolution.Unmixer, log logger.Logger) *preprocessor {
	return &preprocessor{
		imagesDir: imagesDir,
		unmixer:   unmixer,
		logger:    log,
		cache:     make(map[string]*models.Gray),
	}
}

// grey returns the cached stain channel of imageID. The returned raster is shared
// and must not be modified.
func (p *preprocessor) grey(ctx context.Context, imageID string) (*models.Gray, error) {
	p.mu.RLock()
	g, ok := p.cache[imageID]
	p.mu.RUnlock()
	if ok {
		return g, nil
	}

	ch := p.group.DoChan(imageID, func() (interface{}, error) {
		stop := p.timings.Start("preprocess")
		defer stop()

		bgr, w, h, err := LoadBGR(filepath.Join(p.imagesDir, imageID), nil)
		if err != nil {
			return nil, err
		}
		stains, err := p.unmixer.Unmix(bgr, w, h)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.cache[imageID] = stains[0]
		p.mu.Unlock()

		p.logger.Debug("Preprocess", "stain channel cached", map[string]interface{}{
			"image":  imageID,
			"width":  w,
			"height": h,
		})
		return stains[0], nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Gray), nil
	}
}

func (p *preprocessor) cached() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}
