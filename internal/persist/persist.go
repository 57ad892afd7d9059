// Package persist stores the Pareto set as a JSON artifact.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"nucleus-sweep/internal/models"
)

// Save writes combos to path as a JSON array. The file is written to a temporary
// sibling and renamed into place, so a failed save never leaves a truncated file.
func Save(path string, combos []models.ThresholdCombo) error {
	if combos == nil {
		combos = []models.ThresholdCombo{}
	}
	data, err := json.MarshalIndent(combos, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode combos: %v", models.ErrWrite, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", models.ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file in %s: %v", models.ErrWrite, dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write %s: %v", models.ErrWrite, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to sync %s: %v", models.ErrWrite, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: failed to rename %s to %s: %v", models.ErrWrite, tmpName, path, err)
	}
	return nil
}

// Load reads a file written by Save.
func Load(path string) ([]models.ThresholdCombo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read pareto file: %w", err)
	}
	combos := []models.ThresholdCombo{}
	if err := json.Unmarshal(data, &combos); err != nil {
		return nil, fmt.Errorf("failed to parse pareto file %s: %w", path, err)
	}
	return combos, nil
}
