package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweep.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[corpus]
images_dir = "data/images"
annotations_dir = "data/gold"

[sweep]
global_methods = ["Otsu", "Huang"]
local_methods = ["Bernsen"]
workers = 3
image_timeout = "45s"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/images", cfg.Corpus.ImagesDir)
	assert.Equal(t, AnnotationBinary, cfg.Corpus.AnnotationMode)
	if diff := cmp.Diff([]string{"Otsu", "Huang"}, cfg.Sweep.GlobalMethods); diff != "" {
		t.Errorf("global methods mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, cfg.Sweep.Workers)
	assert.Equal(t, 45*time.Second, cfg.Sweep.ImageTimeout)
	assert.Equal(t, 3890, cfg.Pipeline.FirstAreaMax)
	assert.Equal(t, "pareto.json", cfg.Output.ParetoPath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"wrong extension", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "sweep.json")
			require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
			return p
		}},
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.toml") }},
		{"bad syntax", func(t *testing.T) string { return writeConfig(t, "[sweep\nworkers = ") }},
		{"unknown key", func(t *testing.T) string { return writeConfig(t, "[sweep]\nthreads = 4\n") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path(t))
			assert.Error(t, err)
		})
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Corpus.ImagesDir = "images"
	cfg.Corpus.AnnotationsDir = "gold"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no images dir", func(c *Config) { c.Corpus.ImagesDir = "" }, "images_dir"},
		{"bad annotation mode", func(c *Config) { c.Corpus.AnnotationMode = "polygons" }, "annotation_mode"},
		{"empty globals", func(c *Config) { c.Sweep.GlobalMethods = nil }, "global_methods"},
		{"unknown local", func(c *Config) { c.Sweep.LocalMethods = []string{"Gaussian"} }, "unsupported method"},
		{"zero workers", func(c *Config) { c.Sweep.Workers = 0 }, "workers"},
		{"zero timeout", func(c *Config) { c.Sweep.ImageTimeout = 0 }, "image_timeout"},
		{"unknown stain", func(c *Config) { c.Pipeline.Stain = "Giemsa" }, "stain"},
		{"zero radius", func(c *Config) { c.Pipeline.LocalRadius = 0 }, "local_radius"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateUnknownMethodKind(t *testing.T) {
	cfg := validConfig()
	cfg.Sweep.GlobalMethods = []string{"Otsu", "Kittler"}
	err := cfg.Validate()
	assert.ErrorIs(t, err, models.ErrUnsupportedMethod)
}
