package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nucleus-sweep/internal/config"
	"nucleus-sweep/internal/corpus"
	"nucleus-sweep/internal/debug/timing"
	"nucleus-sweep/internal/evaluate"
	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/persist"
	"nucleus-sweep/internal/processing/regions"
	"nucleus-sweep/internal/report"
	"nucleus-sweep/internal/segmentation"
	"nucleus-sweep/internal/shutdown"
	"nucleus-sweep/internal/store"
	"nucleus-sweep/internal/sweep"
)

type sweepFlags struct {
	images      string
	annotations string
	mode        string
	output      string
	csv         string
	plot        string
	html        string
	db          string
	artifacts   string
	workers     int
	globals     []string
	locals      []string
}

func newSweepCmd(root *rootOptions) *cobra.Command {
	flags := &sweepFlags{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Score every global/local combo against the gold standard and keep the Pareto front",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			sm := shutdown.NewManager(cmd.Context(), log)
			sm.Listen()
			defer sm.Shutdown()

			return runSweep(sm.Context(), cfg, sm, log)
		},
	}

	flags.bind(cmd.Flags())
	return cmd
}

func (f *sweepFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.images, "images", "", "directory of corpus images")
	fs.StringVar(&f.annotations, "annotations", "", "directory of gold standard annotation rasters")
	fs.StringVar(&f.mode, "annotation-mode", "", "annotation raster mode (binary, labels)")
	fs.StringVar(&f.output, "output", "", "path of the Pareto JSON file")
	fs.StringVar(&f.csv, "csv", "", "path of the combo CSV table")
	fs.StringVar(&f.plot, "plot", "", "path of the Pareto scatter PNG")
	fs.StringVar(&f.html, "html", "", "path of the interactive HTML report")
	fs.StringVar(&f.db, "db", "", "SQLite run history database")
	fs.StringVar(&f.artifacts, "artifacts", "", "directory for candidate mask PNGs")
	fs.IntVar(&f.workers, "workers", 0, "combos evaluated in parallel")
	fs.StringSliceVar(&f.globals, "global", nil, "global methods to sweep (default all)")
	fs.StringSliceVar(&f.locals, "local", nil, "local methods to sweep (default all)")
}

// apply overrides cfg with every flag set on the command line.
func (f *sweepFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	changed := fs.Changed
	if changed("images") {
		cfg.Corpus.ImagesDir = f.images
	}
	if changed("annotations") {
		cfg.Corpus.AnnotationsDir = f.annotations
	}
	if changed("annotation-mode") {
		cfg.Corpus.AnnotationMode = f.mode
	}
	if changed("output") {
		cfg.Output.ParetoPath = f.output
	}
	if changed("csv") {
		cfg.Output.CSVPath = f.csv
	}
	if changed("plot") {
		cfg.Output.PlotPath = f.plot
	}
	if changed("html") {
		cfg.Output.HTMLPath = f.html
	}
	if changed("db") {
		cfg.Output.DatabasePath = f.db
	}
	if changed("artifacts") {
		cfg.Output.ArtifactsDir = f.artifacts
	}
	if changed("workers") {
		cfg.Sweep.Workers = f.workers
	}
	if changed("global") {
		cfg.Sweep.GlobalMethods = f.globals
	}
	if changed("local") {
		cfg.Sweep.LocalMethods = f.locals
	}
}

func runSweep(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, log logger.Logger) error {
	started := time.Now()

	ids, err := corpus.List(cfg.Corpus.ImagesDir)
	if err != nil {
		return err
	}
	log.Info("Sweep", "corpus listed", map[string]interface{}{
		"images_dir": cfg.Corpus.ImagesDir,
		"images":     len(ids),
	})

	annotations, err := segmentation.NewAnnotations(cfg.Corpus.AnnotationsDir, cfg.Corpus.AnnotationMode, log)
	if err != nil {
		return err
	}
	pipeline, err := segmentation.NewPipeline(pipelineOptions(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to build segmentation pipeline: %w", err)
	}

	tracker := timing.NewTracker()
	pipeline.SetTimingTracker(tracker)

	var extractor regions.Rasterizer
	gold, err := corpus.BuildGoldCache(ctx, ids, annotations, extractor, cfg.Sweep.Workers, log)
	if err != nil {
		log.Error("Sweep", err, map[string]interface{}{"stage": "gold_cache"})
		return fmt.Errorf("failed to build gold standard cache: %w", err)
	}

	evaluator := evaluate.NewEvaluator(gold.IDs(), gold, pipeline, extractor, cfg.Sweep.ImageTimeout, log)
	evaluator.SetTimingTracker(tracker)
	if cfg.Output.ArtifactsDir != "" {
		writer, err := segmentation.NewMaskWriter(cfg.Output.ArtifactsDir)
		if err != nil {
			return err
		}
		evaluator.SetArtifactSink(writer)
	}

	runner := sweep.NewRunner(evaluator, cfg.Sweep.Workers, log)
	runner.SetTimingTracker(tracker)

	rep, runErr := runner.Run(ctx, cfg.Sweep.GlobalMethods, cfg.Sweep.LocalMethods)
	if rep == nil {
		return runErr
	}
	front := sweep.ParetoFront(rep.Combos)

	log.Info("Sweep", "sweep finished", map[string]interface{}{
		"attempted":      rep.Attempted,
		"succeeded":      rep.Succeeded,
		"pareto":         len(front),
		"image_failures": len(rep.ImageFailures),
		"duration":       rep.Duration,
	})

	if err := writeOutputs(ctx, cfg, sm, log, len(ids), rep, front); err != nil {
		return err
	}

	for _, s := range tracker.Summaries() {
		log.Debug("Sweep", "stage timing", map[string]interface{}{
			"operation": s.Operation,
			"count":     s.Count,
			"mean":      s.Mean,
			"stddev":    s.StdDev,
			"max":       s.Max,
		})
	}
	log.Info("Sweep", "done", map[string]interface{}{
		"elapsed": time.Since(started),
	})

	if runErr != nil {
		return fmt.Errorf("sweep interrupted: %w", runErr)
	}
	return nil
}

func pipelineOptions(cfg *config.Config) segmentation.Options {
	return segmentation.Options{
		ImagesDir:       cfg.Corpus.ImagesDir,
		Stain:           cfg.Pipeline.Stain,
		MinParticleArea: cfg.Pipeline.MinParticleArea,
		FirstAreaMax:    cfg.Pipeline.FirstAreaMax,
		SecondAreaMax:   cfg.Pipeline.SecondAreaMax,
		PerimeterMax:    cfg.Pipeline.PerimeterMax,
		LocalRadius:     cfg.Pipeline.LocalRadius,
		Despeckle:       cfg.Pipeline.Despeckle,
	}
}

// writeOutputs saves every configured artifact. The Pareto file is written first
// and a failure there loses the sweep; the remaining outputs are attempted even
// when one of them fails.
func writeOutputs(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, log logger.Logger, imageCount int, rep *sweep.Report, front []models.ThresholdCombo) error {
	if err := persist.Save(cfg.Output.ParetoPath, front); err != nil {
		log.Error("Sweep", err, map[string]interface{}{
			"unsaved_combos": len(rep.Combos),
			"pareto":         len(front),
			"path":           cfg.Output.ParetoPath,
			"message":        "combos computed but not saved",
		})
		return err
	}
	log.Info("Sweep", "pareto front saved", map[string]interface{}{
		"path":   cfg.Output.ParetoPath,
		"combos": len(front),
	})

	var errs []error
	if cfg.Output.CSVPath != "" {
		errs = append(errs, sweep.SaveCSV(cfg.Output.CSVPath, rep, front))
	}
	if cfg.Output.PlotPath != "" && len(rep.Combos) > 0 {
		errs = append(errs, report.SavePlot(cfg.Output.PlotPath, rep.Combos, front))
	}
	if cfg.Output.HTMLPath != "" {
		errs = append(errs, report.SaveHTML(cfg.Output.HTMLPath, rep.Combos, front))
	}
	if cfg.Output.DatabasePath != "" {
		errs = append(errs, saveHistory(ctx, cfg, sm, log, imageCount, rep, front))
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("Sweep", err, map[string]interface{}{
			"message": "pareto front saved, secondary outputs failed",
		})
		return err
	}
	return nil
}

func saveHistory(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, log logger.Logger, imageCount int, rep *sweep.Report, front []models.ThresholdCombo) error {
	st, err := store.Open(cfg.Output.DatabasePath, log)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrWrite, err)
	}
	sm.Register("run history", st)

	// The run context may already be cancelled; the partial report is still recorded.
	run, err := st.SaveRun(context.WithoutCancel(ctx), cfg.Corpus.ImagesDir, imageCount, rep, front)
	if err != nil {
		return err
	}
	log.Info("Sweep", "run recorded", map[string]interface{}{
		"run_id":   run.ID,
		"database": cfg.Output.DatabasePath,
	})
	return nil
}
