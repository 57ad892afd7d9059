// Package evaluate scores one (global, local) method pair over the whole corpus.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/metrics"
	"nucleus-sweep/internal/models"
)

// Segmenter is one independent pipeline session. Sessions are not shared between
// goroutines.
type Segmenter interface {
	Segment(ctx context.Context, imageID, globalMethod, localMethod string) (*models.Segmentation, error)
	Close() error
}

// SessionFactory opens pipeline sessions.
type SessionFactory interface {
	NewSession() (Segmenter, error)
}

// MaskExtractor rasterizes a region set.
type MaskExtractor interface {
	ToMask(regions models.RegionSet, width, height int) (models.MaskAndCount, error)
}

// GoldSource serves read-only ground truth by image id.
type GoldSource interface {
	Get(imageID string) (models.MaskAndCount, error)
}

// ArtifactSink receives every candidate mask that was scored.
type ArtifactSink interface {
	SaveMask(key models.ComboKey, imageID string, mask *models.Mask) error
}

// ImageScore is the per-image outcome of a combo.
type ImageScore struct {
	ImageID    string
	Accuracy   float64
	Difference float64
	JI         float64
}

// Result is the outcome of one combo. Combo is nil when the combo failed.
type Result struct {
	Key      models.ComboKey
	Combo    *models.ThresholdCombo
	Scores   []ImageScore
	Failures []*models.ImageError
	Duration time.Duration
}

type Evaluator struct {
	ids       []string
	gold      GoldSource
	sessions  SessionFactory
	extractor MaskExtractor
	timeout   time.Duration
	artifacts ArtifactSink
	timings   *timing.Tracker
	logger    logger.Logger
}

func NewEvaluator(ids []string, gold GoldSource, sessions SessionFactory, extractor MaskExtractor, timeout time.Duration, log logger.Logger) *Evaluator {
	return &Evaluator{
		ids:       append([]string(nil), ids...),
		gold:      gold,
		sessions:  sessions,
		extractor: extractor,
		timeout:   timeout,
		logger:    log,
	}
}

func (e *Evaluator) SetArtifactSink(sink ArtifactSink) {
	e.artifacts = sink
}

func (e *Evaluator) SetTimingTracker(tt *timing.Tracker) {
	e.timings = tt
}

// Evaluate runs the pipeline for key over every corpus image in order and averages
// the per-image scores. Failed images are excluded from the means and listed in
// the result. An unsupported method or cancellation fails the whole combo.
func (e *Evaluator) Evaluate(ctx context.Context, key models.ComboKey) (*Result, error) {
	if len(e.ids) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	start := time.Now()
	result := &Result{Key: key}

	var session Segmenter
	defer func() {
		if session != nil {
			e.closeSession(session, key)
		}
	}()

	for _, id := range e.ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if session == nil {
			s, err := e.sessions.NewSession()
			if err != nil {
				return result, fmt.Errorf("failed to open segmentation session: %w", err)
			}
			session = s
		}

		score, abandoned, err := e.scoreImage(ctx, session, key, id)
		if abandoned {
			session = nil
		}
		if err != nil {
			if errors.Is(err, models.ErrUnsupportedMethod) {
				return result, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			imgErr := &models.ImageError{ImageID: id, Err: err}
			result.Failures = append(result.Failures, imgErr)
			e.logger.Warning("Evaluator", "image excluded from combo", map[string]interface{}{
				"combo": key.Name(),
				"image": id,
				"kind":  models.ErrorKind(err),
				"error": err,
			})
			continue
		}
		result.Scores = append(result.Scores, score)
	}

	result.Duration = time.Since(start)
	if len(result.Scores) == 0 {
		return result, fmt.Errorf("%w: all %d images failed", models.ErrNoScoredImages, len(result.Failures))
	}

	accs := make([]float64, len(result.Scores))
	diffs := make([]float64, len(result.Scores))
	jis := make([]float64, len(result.Scores))
	for i, s := range result.Scores {
		accs[i] = s.Accuracy
		diffs[i] = s.Difference
		jis[i] = s.JI
	}
	combo := models.NewThresholdCombo(key, stat.Mean(accs, nil), stat.Mean(diffs, nil), stat.Mean(jis, nil))
	result.Combo = &combo

	e.logger.Debug("Evaluator", "combo evaluated", map[string]interface{}{
		"combo":      key.Name(),
		"scored":     len(result.Scores),
		"failed":     len(result.Failures),
		"accuracy":   combo.Accuracy,
		"difference": combo.Difference,
		"ji":         combo.JI,
		"duration":   result.Duration,
	})
	return result, nil
}

func (e *Evaluator) scoreImage(ctx context.Context, session Segmenter, key models.ComboKey, id string) (ImageScore, bool, error) {
	gold, err := e.gold.Get(id)
	if err != nil {
		return ImageScore{}, false, err
	}

	stop := e.timings.Start("segment")
	seg, abandoned, err := withImageTimeout(ctx, e.timeout, id,
		func(ctx context.Context) (*models.Segmentation, error) {
			return session.Segment(ctx, id, key.Global, key.Local)
		},
		func() { e.closeSession(session, key) },
	)
	if err != nil {
		return ImageScore{}, abandoned, err
	}
	stop()
	if seg == nil {
		return ImageScore{}, false, fmt.Errorf("pipeline returned no segmentation")
	}

	candidate, err := e.extractor.ToMask(seg.Regions, seg.Width, seg.Height)
	if err != nil {
		return ImageScore{}, false, fmt.Errorf("failed to rasterize candidate: %w", err)
	}

	counts, err := metrics.Compute(gold.Mask, candidate.Mask)
	if err != nil {
		return ImageScore{}, false, err
	}
	acc, err := counts.Accuracy()
	if err != nil {
		return ImageScore{}, false, err
	}
	ji, err := counts.Jaccard()
	if err != nil {
		return ImageScore{}, false, err
	}

	if e.artifacts != nil {
		if err := e.artifacts.SaveMask(key, id, candidate.Mask); err != nil {
			e.logger.Warning("Evaluator", "failed to save candidate mask", map[string]interface{}{
				"combo": key.Name(),
				"image": id,
				"error": err,
			})
		}
	}

	return ImageScore{
		ImageID:    id,
		Accuracy:   acc,
		Difference: metrics.CountDifference(gold.Count, candidate.Count),
		JI:         ji,
	}, false, nil
}

func (e *Evaluator) closeSession(s Segmenter, key models.ComboKey) {
	if err := s.Close(); err != nil {
		e.logger.Warning("Evaluator", "failed to close segmentation session", map[string]interface{}{
			"combo": key.Name(),
			"error": err,
		})
	}
}
