// Package sweep evaluates every (global, local) method pair and selects the
// Pareto-optimal combos.
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/evaluate"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
)

// ComboEvaluator scores one method pair over the corpus.
type ComboEvaluator interface {
	Evaluate(ctx context.Context, key models.ComboKey) (*evaluate.Result, error)
}

// Outcome is the per-combo record of a sweep, successful or not.
type Outcome struct {
	Key      models.ComboKey
	Combo    *models.ThresholdCombo
	Scored   int
	Failed   int
	Err      error
	Duration time.Duration
}

// ImageFailure is one image excluded from one combo's means.
type ImageFailure struct {
	Key     models.ComboKey
	ImageID string
	Kind    string
	Err     error
}

// Report collects everything a sweep produced. Combos holds only successful
// combos in cross-product order.
type Report struct {
	Attempted     int
	Succeeded     int
	Outcomes      []Outcome
	Combos        []models.ThresholdCombo
	ByKey         map[models.ComboKey]models.ThresholdCombo
	ComboFailures []*models.ComboError
	ImageFailures []ImageFailure
	StartedAt     time.Time
	Duration      time.Duration
}

type Runner struct {
	evaluator ComboEvaluator
	workers   int
	timings   *timing.Tracker
	logger    logger.Logger
}

func NewRunner(evaluator ComboEvaluator, workers int, log logger.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		evaluator: evaluator,
		workers:   workers,
		logger:    log,
	}
}

func (r *Runner) SetTimingTracker(tt *timing.Tracker) {
	r.timings = tt
}

// Run evaluates globals x locals with at most r.workers combos in flight. A failing
// combo is logged and left out of the result; it never stops the others. Only
// cancellation of ctx ends the sweep early, in which case the partial report is
// returned with ctx's error.
func (r *Runner) Run(ctx context.Context, globals, locals []string) (*Report, error) {
	keys := models.CrossProduct(globals, locals)
	report := &Report{
		Attempted: len(keys),
		ByKey:     make(map[models.ComboKey]models.ThresholdCombo, len(keys)),
		StartedAt: time.Now(),
	}

	r.logger.Info("Sweep", "sweep started", map[string]interface{}{
		"combos":  len(keys),
		"workers": r.workers,
	})

	outcomes := make([]Outcome, len(keys))
	results := make([]*evaluate.Result, len(keys))
	var completed atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, key := range keys {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = Outcome{Key: key, Err: ctx.Err()}
				return nil
			}
			stop := r.timings.Start("combo")
			res, err := r.evaluator.Evaluate(ctx, key)
			d := stop()

			outcomes[i] = Outcome{Key: key, Err: err, Duration: d}
			results[i] = res
			if res != nil {
				outcomes[i].Combo = res.Combo
				outcomes[i].Scored = len(res.Scores)
				outcomes[i].Failed = len(res.Failures)
			}

			r.logger.Debug("Sweep", "combo finished", map[string]interface{}{
				"combo":    key.Name(),
				"done":     completed.Add(1),
				"total":    len(keys),
				"duration": d,
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if res := results[i]; res != nil {
			for _, f := range res.Failures {
				report.ImageFailures = append(report.ImageFailures, ImageFailure{
					Key:     o.Key,
					ImageID: f.ImageID,
					Kind:    models.ErrorKind(f.Err),
					Err:     f.Err,
				})
			}
		}

		if o.Err != nil || o.Combo == nil {
			err := o.Err
			if err == nil {
				err = models.ErrNoScoredImages
			}
			outcomes[i].Err = err
			report.ComboFailures = append(report.ComboFailures, &models.ComboError{Key: o.Key, Err: err})
			if ctx.Err() == nil {
				r.logger.Error("Sweep", err, map[string]interface{}{
					"combo": o.Key.Name(),
					"kind":  models.ErrorKind(err),
				})
			}
			continue
		}

		report.Succeeded++
		report.Combos = append(report.Combos, *o.Combo)
		report.ByKey[o.Key] = *o.Combo
	}
	report.Outcomes = outcomes
	report.Duration = time.Since(report.StartedAt)

	r.logger.Info("Sweep", "sweep finished", map[string]interface{}{
		"attempted":      report.Attempted,
		"succeeded":      report.Succeeded,
		"image_failures": len(report.ImageFailures),
		"duration":       report.Duration,
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
