// Package metrics scores a candidate segmentation mask against a ground-truth mask.
package metrics

import (
	"fmt"
	"math"

	"nucleus-sweep/internal/models"
)

// ConfusionCounts holds the pixel-level confusion matrix of a mask pair.
// Rates are computed once at construction; an undefined rate is stored as NaN
// and reported as an error by its accessor.
type ConfusionCounts struct {
	TP float64
	TN float64
	FP float64
	FN float64

	tpr float64
	fpr float64
}

// NewConfusionCounts builds counts and derives TPR and FPR.
func NewConfusionCounts(tp, tn, fp, fn float64) ConfusionCounts {
	c := ConfusionCounts{TP: tp, TN: tn, FP: fp, FN: fn, tpr: math.NaN(), fpr: math.NaN()}
	if tp+fn > 0 {
		c.tpr = tp / (tp + fn)
	}
	if fp+tn > 0 {
		c.fpr = fp / (fp + tn)
	}
	return c
}

// Compute classifies every pixel position of the pair once.
// Foreground is any value other than models.Background.
func Compute(gold, candidate *models.Mask) (ConfusionCounts, error) {
	if gold == nil || candidate == nil {
		return ConfusionCounts{}, fmt.Errorf("gold and candidate masks cannot be nil")
	}
	if !gold.SameSize(candidate) {
		return ConfusionCounts{}, fmt.Errorf("%w: gold %dx%d, candidate %dx%d",
			models.ErrDimensionMismatch, gold.Width, gold.Height, candidate.Width, candidate.Height)
	}

	var tp, tn, fp, fn float64
	for i, g := range gold.Pix {
		goldFg := g != models.Background
		candFg := candidate.Pix[i] != models.Background

		switch {
		case goldFg && candFg:
			tp++
		case !goldFg && !candFg:
			tn++
		case !goldFg && candFg:
			fp++
		default:
			fn++
		}
	}

	return NewConfusionCounts(tp, tn, fp, fn), nil
}

// Total is the number of classified pixels.
func (c ConfusionCounts) Total() float64 {
	return c.TP + c.TN + c.FP + c.FN
}

// TPR is TP/(TP+FN). It fails when the gold mask has no foreground.
func (c ConfusionCounts) TPR() (float64, error) {
	if math.IsNaN(c.tpr) {
		return 0, models.ErrEmptyPositiveClass
	}
	return c.tpr, nil
}

// FPR is FP/(FP+TN). It fails when the gold mask has no background.
func (c ConfusionCounts) FPR() (float64, error) {
	if math.IsNaN(c.fpr) {
		return 0, models.ErrEmptyNegativeClass
	}
	return c.fpr, nil
}

// Accuracy is (TP+TN)/total.
func (c ConfusionCounts) Accuracy() (float64, error) {
	total := c.Total()
	if total == 0 {
		return 0, fmt.Errorf("accuracy of an empty mask pair")
	}
	return (c.TP + c.TN) / total, nil
}

// Jaccard is TP/(TP+FP+FN), the foreground intersection over union.
func (c ConfusionCounts) Jaccard() (float64, error) {
	union := c.TP + c.FP + c.FN
	if union == 0 {
		return 0, models.ErrEmptyUnion
	}
	return c.TP / union, nil
}

// CountDifference is |gold - candidate| region counts.
func CountDifference(gold, candidate int) float64 {
	return math.Abs(float64(gold - candidate))
}
