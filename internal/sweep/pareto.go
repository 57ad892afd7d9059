package sweep

import "nucleus-sweep/internal/models"

// Dominates reports whether a is strictly better than b on all three objectives:
// higher accuracy, lower count difference and higher Jaccard index. A tie on any
// objective means no dominance.
func Dominates(a, b models.ThresholdCombo) bool {
	return a.Accuracy > b.Accuracy && a.Difference < b.Difference && a.JI > b.JI
}

// ParetoFront returns the combos no other combo dominates, in input order.
// O(n^2) pairwise comparison.
func ParetoFront(combos []models.ThresholdCombo) []models.ThresholdCombo {
	front := make([]models.ThresholdCombo, 0, len(combos))
	for i := range combos {
		dominated := false
		for j := range combos {
			if i == j {
				continue
			}
			if Dominates(combos[j], combos[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, combos[i])
		}
	}
	return front
}

// ParetoKeys indexes a front by combo key.
func ParetoKeys(front []models.ThresholdCombo) map[models.ComboKey]bool {
	keys := make(map[models.ComboKey]bool, len(front))
	for _, c := range front {
		keys[c.Key()] = true
	}
	return keys
}
