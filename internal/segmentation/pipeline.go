// Package segmentation is the OpenCV-backed nuclear segmentation pipeline the sweep
// evaluates: stain separation, a global threshold, a local re-threshold of
// oversized particles and a watershed split of the ones that remain too large.
package segmentation

import (
	"context"
	"fmt"
	"sync/atomic"

	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/evaluate"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/opencv/memory"
	"nucleus-sweep/internal/processing/deconvolution"
	"nucleus-sweep/internal/processing/regions"
	"nucleus-sweep/internal/processing/threshold"
)

// Options are the pipeline constants. Areas are in pixels.
type Options struct {
	ImagesDir       string
	Stain           string
	MinParticleArea int
	FirstAreaMax    int
	SecondAreaMax   int
	PerimeterMax    float64
	LocalRadius     int
	Despeckle       bool
}

type Pipeline struct {
	opts       Options
	preprocess *preprocessor
	timings    *timing.Tracker
	logger     logger.Logger
	sessions   atomic.Int64
}

var _ evaluate.SessionFactory = (*Pipeline)(nil)

func NewPipeline(opts Options, log logger.Logger) (*Pipeline, error) {
	stain, err := deconvolution.LookupStain(opts.Stain)
	if err != nil {
		return nil, err
	}
	unmixer, err := deconvolution.NewUnmixer(stain)
	if err != nil {
		return nil, fmt.Errorf("failed to build stain unmixer: %w", err)
	}
	if opts.LocalRadius < 1 {
		return nil, fmt.Errorf("invalid local radius %d", opts.LocalRadius)
	}

	return &Pipeline{
		opts:       opts,
		preprocess: newPreprocessor(opts.ImagesDir, unmixer, log),
		logger:     log,
	}, nil
}

func (p *Pipeline) SetTimingTracker(tt *timing.Tracker) {
	p.timings = tt
	p.preprocess.timings = tt
}

// NewSession opens an independent session with its own Mat accounting.
func (p *Pipeline) NewSession() (evaluate.Segmenter, error) {
	id := p.sessions.Add(1)
	return &Session{
		id:     id,
		p:      p,
		mem:    memory.NewManager(),
		logger: p.logger,
	}, nil
}

// Session runs the pipeline for one caller at a time.
type Session struct {
	id     int64
	p      *Pipeline
	mem    *memory.Manager
	closed atomic.Bool
	logger logger.Logger
}

var _ evaluate.Segmenter = (*Session)(nil)

// Segment produces the candidate nuclei of one image for a method pair.
func (s *Session) Segment(ctx context.Context, imageID, globalMethod, localMethod string) (*models.Segmentation, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("segmentation session %d is closed", s.id)
	}
	if err := threshold.ValidatePair(globalMethod, localMethod); err != nil {
		return nil, err
	}

	opts := s.p.opts
	grey, err := s.p.preprocess.grey(ctx, imageID)
	if err != nil {
		return nil, err
	}
	w, h := grey.Width, grey.Height

	stop := s.p.timings.Start("global_threshold")
	mask, level, err := threshold.ApplyGlobal(grey, globalMethod)
	stop()
	if err != nil {
		return nil, fmt.Errorf("global threshold %s: %w", globalMethod, err)
	}
	first, err := s.analyse(mask, nil)
	if err != nil {
		return nil, err
	}
	normal1, abnormal1 := regions.Split(first, opts.FirstAreaMax, opts.PerimeterMax)

	result := &models.Segmentation{ImageID: imageID, Width: w, Height: h}
	result.Regions = append(result.Regions, normal1...)

	if len(abnormal1) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		normal2, abnormal2, err := s.relocalise(grey, abnormal1, localMethod)
		if err != nil {
			return nil, err
		}
		result.Regions = append(result.Regions, normal2...)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stop := s.p.timings.Start("watershed")
		split, err := watershed(abnormal2, w, h, opts.MinParticleArea, s.mem)
		stop()
		if err != nil {
			return nil, fmt.Errorf("watershed: %w", err)
		}
		result.Regions = append(result.Regions, split...)
	}

	s.logger.Debug("Segmentation", "image segmented", map[string]interface{}{
		"image":   imageID,
		"global":  globalMethod,
		"local":   localMethod,
		"level":   level,
		"regions": len(result.Regions),
		"session": s.id,
	})
	return result, nil
}

// relocalise re-thresholds the grey values under the abnormal particles with the
// local method and splits the result again with the tighter area limit.
func (s *Session) relocalise(grey *models.Gray, abnormal models.RegionSet, localMethod string) (normal, still models.RegionSet, err error) {
	opts := s.p.opts
	clip, err := regions.Union(grey.Width, grey.Height, abnormal)
	if err != nil {
		return nil, nil, err
	}

	restricted := grey.Clone()
	for i, v := range clip.Pix {
		if v == models.Background {
			restricted.Pix[i] = 255
		}
	}

	stop := s.p.timings.Start("local_threshold")
	mask, err := threshold.ApplyLocal(restricted, localMethod, opts.LocalRadius)
	stop()
	if err != nil {
		return nil, nil, fmt.Errorf("local threshold %s: %w", localMethod, err)
	}

	second, err := s.analyse(mask, clip)
	if err != nil {
		return nil, nil, err
	}
	normal, still = regions.Split(second, opts.SecondAreaMax, opts.PerimeterMax)
	return normal, still, nil
}

// analyse cleans a threshold mask and extracts its particles. With clip set,
// foreground outside clip is cleared after hole filling.
func (s *Session) analyse(mask, clip *models.Mask) (models.RegionSet, error) {
	var err error
	if s.p.opts.Despeckle {
		if mask, err = despeckle(mask, s.mem); err != nil {
			return nil, fmt.Errorf("despeckle: %w", err)
		}
	}
	mask = regions.FillHoles(mask)
	if clip != nil {
		if mask, err = regions.Intersect(mask, clip); err != nil {
			return nil, err
		}
	}

	stop := s.p.timings.Start("particles")
	defer stop()
	set, err := particles(mask, s.p.opts.MinParticleArea, s.mem)
	if err != nil {
		return nil, fmt.Errorf("analyse particles: %w", err)
	}
	return set, nil
}

// Close ends the session and reports Mats it failed to release.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if leaked := s.mem.Outstanding(); len(leaked) > 0 {
		tags := make([]string, len(leaked))
		for i, r := range leaked {
			tags[i] = r.Tag
		}
		s.logger.Warning("Segmentation", "session closed with live Mats", map[string]interface{}{
			"session": s.id,
			"count":   len(leaked),
			"tags":    tags,
		})
	}
	stats := s.mem.GetStats()
	s.logger.Debug("Segmentation", "session closed", map[string]interface{}{
		"session":    s.id,
		"peak_mats":  stats.PeakMats,
		"allocated":  stats.TotalAllocated,
		"cached_img": s.p.preprocess.cached(),
	})
	return nil
}
