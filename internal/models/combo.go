package models

// ComboSeparator joins method names in display names.
const ComboSeparator = "-"

// ComboKey identifies one (global, local) thresholding pair.
type ComboKey struct {
	Global string `json:"global"`
	Local  string `json:"local"`
}

// Name returns the display name "<global>-<local>". It is not unique when method
// names contain the separator, so maps are keyed by ComboKey instead.
func (k ComboKey) Name() string {
	return k.Global + ComboSeparator + k.Local
}

func (k ComboKey) String() string {
	return k.Name()
}

// ThresholdCombo holds the corpus-wide mean scores for one method pair.
type ThresholdCombo struct {
	Name       string  `json:"name"`
	Global     string  `json:"global"`
	Local      string  `json:"local"`
	Accuracy   float64 `json:"accuracy"`
	Difference float64 `json:"difference"`
	JI         float64 `json:"ji"`
}

// NewThresholdCombo builds the aggregate record for key.
func NewThresholdCombo(key ComboKey, accuracy, difference, ji float64) ThresholdCombo {
	return ThresholdCombo{
		Name:       key.Name(),
		Global:     key.Global,
		Local:      key.Local,
		Accuracy:   accuracy,
		Difference: difference,
		JI:         ji,
	}
}

// Key returns the structured identity of the combo.
func (c ThresholdCombo) Key() ComboKey {
	return ComboKey{Global: c.Global, Local: c.Local}
}

// CrossProduct enumerates globals x locals in input order, globals outermost.
func CrossProduct(globals, locals []string) []ComboKey {
	keys := make([]ComboKey, 0, len(globals)*len(locals))
	for _, g := range globals {
		for _, l := range locals {
			keys = append(keys, ComboKey{Global: g, Local: l})
		}
	}
	return keys
}
