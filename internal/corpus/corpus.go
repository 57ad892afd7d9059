// Package corpus enumerates the evaluation images and holds their precomputed
// gold standard masks.
package corpus

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// List returns the regular, non-hidden file names of dir in lexicographic order.
// The order is the fixed iteration order used by every evaluation.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		ids = append(ids, e.Name())
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("corpus directory %s has no image files", dir)
	}
	sort.Strings(ids)
	return ids, nil
}
