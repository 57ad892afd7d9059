package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/sweep"
)

func sampleCombos() []models.ThresholdCombo {
	return []models.ThresholdCombo{
		models.NewThresholdCombo(models.ComboKey{Global: "Otsu", Local: "Bernsen"}, 0.9, 2, 0.8),
		models.NewThresholdCombo(models.ComboKey{Global: "Li", Local: "Bernsen"}, 0.95, 1, 0.85),
		models.NewThresholdCombo(models.ComboKey{Global: "Mean", Local: "Niblack"}, 0.7, 0.5, 0.6),
	}
}

func TestSplitFront(t *testing.T) {
	combos := sampleCombos()
	rest, onFront := splitFront(combos, sweep.ParetoFront(combos))

	require.Len(t, rest, 1)
	assert.Equal(t, "Otsu-Bernsen", rest[0].Name)
	require.Len(t, onFront, 2)
	assert.Equal(t, "Li-Bernsen", onFront[0].Name)
	assert.Equal(t, "Mean-Niblack", onFront[1].Name)
}

func TestSavePlotWritesPNG(t *testing.T) {
	combos := sampleCombos()
	path := filepath.Join(t.TempDir(), "plots", "pareto.png")
	require.NoError(t, SavePlot(path, combos, sweep.ParetoFront(combos)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestNewScatterPlotWithoutFront(t *testing.T) {
	p, err := NewScatterPlot(sampleCombos(), nil)
	require.NoError(t, err)
	assert.Contains(t, p.Title.Text, "Pareto 0")
}

func TestWriteHTML(t *testing.T) {
	combos := sampleCombos()
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, combos, sweep.ParetoFront(combos)))

	html := buf.String()
	assert.Contains(t, html, "Accuracy vs Jaccard")
	assert.Contains(t, html, "Count difference vs Jaccard")
	assert.Contains(t, html, "Pareto front")
	assert.Contains(t, html, "Li-Bernsen")
}

func TestSaveHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, SaveHTML(path, sampleCombos(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<html")
}
