// Package config loads sweep settings from a TOML file layered over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/processing/deconvolution"
	"nucleus-sweep/internal/processing/threshold"
)

// Annotation modes for gold standard rasters.
const (
	AnnotationBinary = "binary"
	AnnotationLabels = "labels"
)

const maxFileSize = 1 * 1024 * 1024

type Config struct {
	Corpus   CorpusConfig   `toml:"corpus"`
	Sweep    SweepConfig    `toml:"sweep"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Output   OutputConfig   `toml:"output"`
	Log      LogConfig      `toml:"log"`
}

type CorpusConfig struct {
	ImagesDir      string `toml:"images_dir"`
	AnnotationsDir string `toml:"annotations_dir"`
	AnnotationMode string `toml:"annotation_mode"`
}

type SweepConfig struct {
	GlobalMethods []string      `toml:"global_methods"`
	LocalMethods  []string      `toml:"local_methods"`
	Workers       int           `toml:"workers"`
	ImageTimeout  time.Duration `toml:"image_timeout"`
}

// PipelineConfig carries the segmentation constants. Areas are in pixels,
// perimeters in pixel edge lengths.
type PipelineConfig struct {
	Stain           string  `toml:"stain"`
	MinParticleArea int     `toml:"min_particle_area"`
	FirstAreaMax    int     `toml:"first_area_max"`
	SecondAreaMax   int     `toml:"second_area_max"`
	PerimeterMax    float64 `toml:"perimeter_max"`
	LocalRadius     int     `toml:"local_radius"`
	Despeckle       bool    `toml:"despeckle"`
}

type OutputConfig struct {
	ParetoPath   string `toml:"pareto_path"`
	CSVPath      string `toml:"csv_path"`
	PlotPath     string `toml:"plot_path"`
	HTMLPath     string `toml:"html_path"`
	DatabasePath string `toml:"database_path"`
	ArtifactsDir string `toml:"artifacts_dir"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Corpus: CorpusConfig{
			AnnotationMode: AnnotationBinary,
		},
		Sweep: SweepConfig{
			GlobalMethods: threshold.GlobalMethods(),
			LocalMethods:  threshold.LocalMethods(),
			Workers:       workers,
			ImageTimeout:  2 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Stain:           "H&E",
			MinParticleArea: 100,
			FirstAreaMax:    3890,
			SecondAreaMax:   1800,
			PerimeterMax:    226,
			LocalRadius:     15,
			Despeckle:       true,
		},
		Output: OutputConfig{
			ParetoPath: "pareto.json",
			CSVPath:    "combos.csv",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML file over Default(). Keys missing from the file keep their
// default value. The result is not validated so flag overrides can be applied first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	md, err := toml.DecodeFile(cleanPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Corpus.ImagesDir == "" {
		errs = append(errs, errors.New("corpus.images_dir must be set"))
	}
	if c.Corpus.AnnotationsDir == "" {
		errs = append(errs, errors.New("corpus.annotations_dir must be set"))
	}
	switch c.Corpus.AnnotationMode {
	case AnnotationBinary, AnnotationLabels:
	default:
		errs = append(errs, fmt.Errorf("corpus.annotation_mode must be %q or %q, got %q",
			AnnotationBinary, AnnotationLabels, c.Corpus.AnnotationMode))
	}

	if len(c.Sweep.GlobalMethods) == 0 {
		errs = append(errs, errors.New("sweep.global_methods must not be empty"))
	}
	if len(c.Sweep.LocalMethods) == 0 {
		errs = append(errs, errors.New("sweep.local_methods must not be empty"))
	}
	for _, g := range c.Sweep.GlobalMethods {
		for _, l := range c.Sweep.LocalMethods {
			if err := threshold.ValidatePair(g, l); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if c.Sweep.Workers < 1 {
		errs = append(errs, fmt.Errorf("sweep.workers must be at least 1, got %d", c.Sweep.Workers))
	}
	if c.Sweep.ImageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sweep.image_timeout must be positive, got %s", c.Sweep.ImageTimeout))
	}

	if _, err := deconvolution.LookupStain(c.Pipeline.Stain); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.stain: %w", err))
	}
	if c.Pipeline.MinParticleArea < 1 {
		errs = append(errs, fmt.Errorf("pipeline.min_particle_area must be at least 1, got %d", c.Pipeline.MinParticleArea))
	}
	if c.Pipeline.FirstAreaMax <= 0 || c.Pipeline.SecondAreaMax <= 0 {
		errs = append(errs, errors.New("pipeline area limits must be positive"))
	}
	if c.Pipeline.PerimeterMax <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.perimeter_max must be positive, got %g", c.Pipeline.PerimeterMax))
	}
	if c.Pipeline.LocalRadius < 1 {
		errs = append(errs, fmt.Errorf("pipeline.local_radius must be at least 1, got %d", c.Pipeline.LocalRadius))
	}

	if c.Output.ParetoPath == "" {
		errs = append(errs, errors.New("output.pareto_path must be set"))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}
