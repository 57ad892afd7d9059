// Package report renders the combo scores of a sweep as a PNG scatter plot and
// an interactive HTML page.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/sweep"
)

var (
	dominatedColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	paretoColor    = color.RGBA{R: 200, G: 30, B: 45, A: 255}
)

// splitFront partitions combos into dominated and Pareto members, keeping order.
func splitFront(combos, front []models.ThresholdCombo) (rest, onFront []models.ThresholdCombo) {
	keys := sweep.ParetoKeys(front)
	for _, c := range combos {
		if keys[c.Key()] {
			onFront = append(onFront, c)
		} else {
			rest = append(rest, c)
		}
	}
	return rest, onFront
}

func jiAccuracyXYs(combos []models.ThresholdCombo) plotter.XYs {
	pts := make(plotter.XYs, len(combos))
	for i, c := range combos {
		pts[i] = plotter.XY{X: c.JI, Y: c.Accuracy}
	}
	return pts
}

// NewScatterPlot builds the accuracy vs Jaccard plot with the Pareto front
// highlighted and labelled.
func NewScatterPlot(combos, front []models.ThresholdCombo) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Threshold combos (%d, Pareto %d)", len(combos), len(front))
	p.X.Label.Text = "Mean Jaccard index"
	p.Y.Label.Text = "Mean accuracy"
	p.Add(plotter.NewGrid())

	rest, onFront := splitFront(combos, front)

	if len(rest) > 0 {
		s, err := plotter.NewScatter(jiAccuracyXYs(rest))
		if err != nil {
			return nil, fmt.Errorf("failed to build combo scatter: %w", err)
		}
		s.GlyphStyle.Color = dominatedColor
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(s)
		p.Legend.Add("dominated", s)
	}

	if len(onFront) > 0 {
		pts := jiAccuracyXYs(onFront)
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build pareto scatter: %w", err)
		}
		s.GlyphStyle.Color = paretoColor
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(4)
		p.Add(s)
		p.Legend.Add("Pareto front", s)

		names := make([]string, len(onFront))
		for i, c := range onFront {
			names[i] = c.Name
		}
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: names})
		if err != nil {
			return nil, fmt.Errorf("failed to build pareto labels: %w", err)
		}
		labels.Offset = vg.Point{X: vg.Points(5), Y: vg.Points(3)}
		p.Add(labels)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// SavePlot writes the scatter plot to path. The image format follows the file
// extension (.png, .svg, .pdf).
func SavePlot(path string, combos, front []models.ThresholdCombo) error {
	p, err := NewScatterPlot(combos, front)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create plot dir: %w", err)
	}
	if err := p.Save(10*vg.Inch, 7*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
