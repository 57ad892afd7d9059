package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"nucleus-sweep/internal/models"
)

func scatterData(combos []models.ThresholdCombo, y func(models.ThresholdCombo) float64) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(combos))
	for _, c := range combos {
		data = append(data, opts.ScatterData{
			Name:  c.Name,
			Value: []interface{}{c.JI, y(c), c.Name},
		})
	}
	return data
}

func newComboScatter(title, yName string, combos, front []models.ThresholdCombo, y func(models.ThresholdCombo) float64) *charts.Scatter {
	rest, onFront := splitFront(combos, front)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Threshold sweep", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("combos=%d pareto=%d", len(combos), len(front))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Mean Jaccard index", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 40}),
	)
	scatter.AddSeries("dominated", scatterData(rest, y),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#969696"}),
	)
	scatter.AddSeries("Pareto front", scatterData(onFront, y),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#c81e2d"}),
	)
	return scatter
}

// WriteHTML renders an HTML page with accuracy and count difference against
// Jaccard index, Pareto combos in their own series.
func WriteHTML(w io.Writer, combos, front []models.ThresholdCombo) error {
	accuracy := newComboScatter("Accuracy vs Jaccard", "Mean accuracy", combos, front,
		func(c models.ThresholdCombo) float64 { return c.Accuracy })
	difference := newComboScatter("Count difference vs Jaccard", "Mean count difference", combos, front,
		func(c models.ThresholdCombo) float64 { return c.Difference })

	page := components.NewPage()
	page.AddCharts(accuracy, difference)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// SaveHTML writes the HTML report to path.
func SaveHTML(path string, combos, front []models.ThresholdCombo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := WriteHTML(f, combos, front); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
