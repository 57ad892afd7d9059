package segmentation

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/logger"
	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/opencv/memory"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func discMask(t *testing.T, w, h, radius int, centers ...[2]int) *models.Mask {
	t.Helper()
	m, err := models.NewMask(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for _, c := range centers {
				dx, dy := x-c[0], y-c[1]
				if dx*dx+dy*dy <= radius*radius {
					m.SetForeground(x, y)
				}
			}
		}
	}
	return m
}

// stainedImage draws haematoxylin-coloured discs on a white background.
func stainedImage(w, h, radius int, centers ...[2]int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
			for _, ctr := range centers {
				dx, dy := x-ctr[0], y-ctr[1]
				if dx*dx+dy*dy <= radius*radius {
					c = color.RGBA{R: 133, G: 127, B: 191, A: 255}
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDespeckleRemovesIsolatedPixels(t *testing.T) {
	m := discMask(t, 40, 40, 8, [2]int{20, 20})
	m.SetForeground(2, 2)

	mem := memory.NewManager()
	out, err := despeckle(m, mem)
	require.NoError(t, err)
	assert.False(t, out.IsForeground(2, 2))
	assert.True(t, out.IsForeground(20, 20))
	assert.Empty(t, mem.Outstanding())
}

func TestParticlesFiltersByArea(t *testing.T) {
	m := discMask(t, 60, 40, 8, [2]int{15, 20})
	small := discMask(t, 60, 40, 2, [2]int{45, 20})
	for i, v := range small.Pix {
		if v != models.Background {
			m.Pix[i] = models.Foreground
		}
	}

	mem := memory.NewManager()
	set, err := particles(m, 100, mem)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Greater(t, set[0].Area, 150)
	assert.Empty(t, mem.Outstanding())
}

func TestWatershedSplitsTouchingDiscs(t *testing.T) {
	m := discMask(t, 100, 60, 18, [2]int{30, 30}, [2]int{64, 30})
	joined, err := particles(m, 1, nil)
	require.NoError(t, err)
	require.Len(t, joined, 1)

	mem := memory.NewManager()
	split, err := watershed(joined, 100, 60, 100, mem)
	require.NoError(t, err)
	require.Len(t, split, 2)
	for _, r := range split {
		assert.Greater(t, r.Area, 500)
	}
	assert.Empty(t, mem.Outstanding())
}

func TestWatershedEmptySet(t *testing.T) {
	split, err := watershed(nil, 10, 10, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, split)
}

func newTestPipeline(t *testing.T, dir string) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Options{
		ImagesDir:       dir,
		Stain:           "H&E",
		MinParticleArea: 100,
		FirstAreaMax:    3890,
		SecondAreaMax:   1800,
		PerimeterMax:    226,
		LocalRadius:     15,
		Despeckle:       true,
	}, logger.NewNop())
	require.NoError(t, err)
	return p
}

func TestPipelineSegmentsSeparateNuclei(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), stainedImage(120, 80, 12, [2]int{20, 20}, [2]int{60, 40}, [2]int{100, 60}))

	p := newTestPipeline(t, dir)
	session, err := p.NewSession()
	require.NoError(t, err)
	defer session.Close()

	seg, err := session.Segment(context.Background(), "a.png", "Otsu", "Mean")
	require.NoError(t, err)
	assert.Equal(t, "a.png", seg.ImageID)
	assert.Equal(t, 120, seg.Width)
	assert.Equal(t, 80, seg.Height)
	assert.Len(t, seg.Regions, 3)

	_, err = session.Segment(context.Background(), "a.png", "Mean", "Bernsen")
	require.NoError(t, err)
	assert.Equal(t, 1, p.preprocess.cached())
}

func TestPipelineRejectsUnknownMethodFirst(t *testing.T) {
	p := newTestPipeline(t, t.TempDir())
	session, err := p.NewSession()
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Segment(context.Background(), "missing.png", "NoSuchMethod", "Mean")
	assert.ErrorIs(t, err, models.ErrUnsupportedMethod)

	_, err = session.Segment(context.Background(), "missing.png", "Otsu", "NoSuchMethod")
	assert.ErrorIs(t, err, models.ErrUnsupportedMethod)
}

func TestPipelineLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644))

	p := newTestPipeline(t, dir)
	session, err := p.NewSession()
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Segment(context.Background(), "missing.png", "Otsu", "Mean")
	assert.ErrorIs(t, err, models.ErrLoad)

	_, err = session.Segment(context.Background(), "broken.png", "Otsu", "Mean")
	assert.ErrorIs(t, err, models.ErrLoad)
}

func TestSessionClose(t *testing.T) {
	p := newTestPipeline(t, t.TempDir())
	session, err := p.NewSession()
	require.NoError(t, err)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	_, err = session.Segment(context.Background(), "a.png", "Otsu", "Mean")
	assert.Error(t, err)
}

func TestNewPipelineValidatesOptions(t *testing.T) {
	_, err := NewPipeline(Options{Stain: "Unknown", LocalRadius: 15}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewPipeline(Options{Stain: "H&E", LocalRadius: 0}, logger.NewNop())
	assert.Error(t, err)
}

func TestAnnotationsBinary(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
			img.SetGray(x+10, y+4, color.Gray{Y: 1})
		}
	}
	writePNG(t, filepath.Join(dir, "a.png"), img)

	a, err := NewAnnotations(dir, ModeBinary, logger.NewNop())
	require.NoError(t, err)
	seg, err := a.Annotate(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, 20, seg.Width)
	assert.Equal(t, 10, seg.Height)
	require.Len(t, seg.Regions, 2)
	assert.Equal(t, 9, seg.Regions[0].Area)
}

func TestAnnotationsBinaryJoinsDiagonalNeighbours(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	// A diagonal staircase is one 8-connected nucleus; the isolated pixel is another.
	for i := 1; i < 5; i++ {
		img.SetGray(i, i, color.Gray{Y: 255})
	}
	img.SetGray(7, 0, color.Gray{Y: 255})
	writePNG(t, filepath.Join(dir, "stairs.png"), img)

	a, err := NewAnnotations(dir, ModeBinary, logger.NewNop())
	require.NoError(t, err)
	seg, err := a.Annotate(context.Background(), "stairs.png")
	require.NoError(t, err)
	require.Len(t, seg.Regions, 2)
	areas := []int{seg.Regions[0].Area, seg.Regions[1].Area}
	assert.ElementsMatch(t, []int{4, 1}, areas)
	assert.Empty(t, a.tracker.Outstanding())

	// Gold and candidate sides label components the same way.
	m, err := models.NewMask(8, 8)
	require.NoError(t, err)
	for i := 1; i < 5; i++ {
		m.SetForeground(i, i)
	}
	m.SetForeground(7, 0)
	candidate, err := particles(m, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, len(candidate), len(seg.Regions))
}

func TestAnnotationsLabels16Bit(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray16(image.Rect(0, 0, 6, 2))
	// Two touching nuclei with different labels, one above 255.
	for x := 0; x < 3; x++ {
		img.SetGray16(x, 0, color.Gray16{Y: 7})
		img.SetGray16(x+3, 0, color.Gray16{Y: 300})
	}
	writePNG(t, filepath.Join(dir, "b.png"), img)

	a, err := NewAnnotations(dir, ModeLabels, logger.NewNop())
	require.NoError(t, err)
	seg, err := a.Annotate(context.Background(), "b.png")
	require.NoError(t, err)
	require.Len(t, seg.Regions, 2)
	assert.Equal(t, 3, seg.Regions[0].Area)
	assert.Equal(t, 3, seg.Regions[1].Area)
}

func TestAnnotationsErrors(t *testing.T) {
	_, err := NewAnnotations(t.TempDir(), "polygons", logger.NewNop())
	assert.Error(t, err)

	a, err := NewAnnotations(t.TempDir(), ModeBinary, logger.NewNop())
	require.NoError(t, err)
	_, err = a.Annotate(context.Background(), "missing.png")
	assert.ErrorIs(t, err, models.ErrLoad)
}

func TestMaskWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	w, err := NewMaskWriter(dir)
	require.NoError(t, err)

	m, err := models.MaskFromRows([][]uint8{
		{0, 1},
		{1, 0},
	})
	require.NoError(t, err)
	key := models.ComboKey{Global: "Otsu", Local: "Mean"}
	require.NoError(t, w.SaveMask(key, "slide 1.tif", m))

	path := w.Path(key, "slide 1.tif")
	assert.Equal(t, filepath.Join(dir, "Otsu-Mean-slide 1.tif.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []uint8{0, 255, 255, 0}, gray.Pix)
}

func TestMaskWriterKeepsImageExtension(t *testing.T) {
	w, err := NewMaskWriter(t.TempDir())
	require.NoError(t, err)
	key := models.ComboKey{Global: "Otsu", Local: "Mean"}

	m, err := models.MaskFromRows([][]uint8{{1, 0}})
	require.NoError(t, err)
	other, err := models.MaskFromRows([][]uint8{{0, 1}})
	require.NoError(t, err)

	require.NotEqual(t, w.Path(key, "a.png"), w.Path(key, "a.tif"))
	require.NoError(t, w.SaveMask(key, "a.png", m))
	require.NoError(t, w.SaveMask(key, "a.tif", other))

	for id, want := range map[string][]uint8{"a.png": {255, 0}, "a.tif": {0, 255}} {
		f, err := os.Open(w.Path(key, id))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, want, img.(*image.Gray).Pix, id)
	}
}
