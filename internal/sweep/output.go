package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"nucleus-sweep/internal/models"
)

var csvHeader = []string{"name", "global", "local", "accuracy", "difference", "ji", "scored", "failed", "pareto", "error"}

// WriteCSV writes one row per attempted combo in cross-product order. Failed combos
// have empty score columns and the error kind in the last column.
func WriteCSV(w io.Writer, report *Report, front []models.ThresholdCombo) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	onFront := ParetoKeys(front)
	for _, o := range report.Outcomes {
		row := []string{o.Key.Name(), o.Key.Global, o.Key.Local, "", "", "", strconv.Itoa(o.Scored), strconv.Itoa(o.Failed), "", ""}
		if o.Combo != nil && o.Err == nil {
			row[3] = formatFloat(o.Combo.Accuracy)
			row[4] = formatFloat(o.Combo.Difference)
			row[5] = formatFloat(o.Combo.JI)
			row[8] = strconv.FormatBool(onFront[o.Key])
		} else {
			row[9] = models.ErrorKind(o.Err)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the combo table to path, creating parent directories.
func SaveCSV(path string, report *Report, front []models.ThresholdCombo) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: failed to create %s: %v", models.ErrWrite, dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrWrite, path, err)
	}
	if err := WriteCSV(f, report, front); err != nil {
		f.Close()
		return fmt.Errorf("%w: failed to write %s: %v", models.ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrWrite, path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
