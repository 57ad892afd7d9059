package segmentation

import (
	"context"
	"fmt"
	"path/filepath"

	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/opencv/memory"
	"nucleus-sweep/internal/opencv/safe"
	"nucleus-sweep/internal/processing/regions"
)

// Annotation raster modes.
const (
	ModeBinary = "binary"
	ModeLabels = "labels"
)

// Annotations reads the gold standard of an image from <dir>/<image id>. In binary
// mode each 8-connected blob of non-zero pixels is one nucleus; in labels mode each
// distinct non-zero value is one nucleus.
type Annotations struct {
	dir     string
	mode    string
	tracker *memory.Manager
	logger  logger.Logger
}

func NewAnnotations(dir, mode string, log logger.Logger) (*Annotations, error) {
	switch mode {
	case ModeBinary, ModeLabels:
	default:
		return nil, fmt.Errorf("unknown annotation mode %q", mode)
	}
	return &Annotations{dir: dir, mode: mode, tracker: memory.NewManager(), logger: log}, nil
}

func (a *Annotations) Annotate(ctx context.Context, imageID string) (*models.Segmentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, w, h, err := LoadLabelRaster(filepath.Join(a.dir, imageID), a.tracker)
	if err != nil {
		return nil, err
	}

	set, err := annotationRegions(raw, w, h, a.mode, a.tracker)
	if err != nil {
		return nil, fmt.Errorf("%w: annotation %s: %v", models.ErrLoad, imageID, err)
	}

	a.logger.Debug("Annotations", "annotation read", map[string]interface{}{
		"image":   imageID,
		"mode":    a.mode,
		"regions": len(set),
	})
	return &models.Segmentation{ImageID: imageID, Width: w, Height: h, Regions: set}, nil
}

func annotationRegions(raw []int32, w, h int, mode string, tracker safe.MemoryTracker) (models.RegionSet, error) {
	if mode == ModeLabels {
		return regions.FromLabels(raw, w, h)
	}
	mask, err := models.NewMask(w, h)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(mask.Pix) {
		return nil, fmt.Errorf("%w: %d values for %dx%d", models.ErrDimensionMismatch, len(raw), w, h)
	}
	for i, v := range raw {
		if v != 0 {
			mask.Pix[i] = models.Foreground
		}
	}
	return particles(mask, 1, tracker)
}
