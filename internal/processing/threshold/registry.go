// Package threshold implements the histogram (global) and neighbourhood (local)
// thresholding methods the sweep selects by name. Objects are dark: a pixel is
// foreground when it is at or below the global level, or when its local rule
// accepts it.
package threshold

import (
	"fmt"

	"nucleus-sweep/internal/models"
)

// GlobalFunc computes a single grey level from an image histogram.
type GlobalFunc func(h Histogram) (int, error)

type globalMethod struct {
	name string
	fn   GlobalFunc
}

type localMethod struct {
	name string
	rule localRule
}

var globalMethods = []globalMethod{
	{"Default", isoDataDefault},
	{"Huang", huang},
	{"Intermodes", intermodes},
	{"IsoData", isoData},
	{"Li", li},
	{"MaxEntropy", maxEntropy},
	{"Mean", mean},
	{"Minimum", minimum},
	{"Moments", moments},
	{"Otsu", otsu},
	{"Percentile", percentile},
	{"RenyiEntropy", renyiEntropy},
	{"Shanbhag", shanbhag},
	{"Triangle", triangle},
}

var localMethods = []localMethod{
	{"Bernsen", bernsen},
	{"Contrast", contrast},
	{"Mean", localMean},
	{"Median", localMedian},
	{"MidGrey", midGrey},
	{"Niblack", niblack},
	{"Otsu", localOtsu},
	{"Phansalkar", phansalkar},
	{"Sauvola", sauvola},
}

// GlobalMethods lists the supported global method names in canonical order.
func GlobalMethods() []string {
	names := make([]string, len(globalMethods))
	for i, m := range globalMethods {
		names[i] = m.name
	}
	return names
}

// LocalMethods lists the supported local method names in canonical order.
func LocalMethods() []string {
	names := make([]string, len(localMethods))
	for i, m := range localMethods {
		names[i] = m.name
	}
	return names
}

// LookupGlobal resolves a global method by name.
func LookupGlobal(name string) (GlobalFunc, error) {
	for _, m := range globalMethods {
		if m.name == name {
			return m.fn, nil
		}
	}
	return nil, fmt.Errorf("%w: global method %q", models.ErrUnsupportedMethod, name)
}

func lookupLocal(name string) (localRule, error) {
	for _, m := range localMethods {
		if m.name == name {
			return m.rule, nil
		}
	}
	return nil, fmt.Errorf("%w: local method %q", models.ErrUnsupportedMethod, name)
}

// ValidatePair checks both names before any pixel work is done.
func ValidatePair(global, local string) error {
	if _, err := LookupGlobal(global); err != nil {
		return err
	}
	_, err := lookupLocal(local)
	return err
}

// Level computes the global threshold level of g.
func Level(g *models.Gray, method string) (int, error) {
	fn, err := LookupGlobal(method)
	if err != nil {
		return 0, err
	}
	level, err := fn(Histogram(g.Histogram()))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	return level, nil
}

// ApplyGlobal thresholds g with the named histogram method. It returns the mask
// and the level used.
func ApplyGlobal(g *models.Gray, method string) (*models.Mask, int, error) {
	level, err := Level(g, method)
	if err != nil {
		return nil, 0, err
	}
	mask, err := models.NewMask(g.Width, g.Height)
	if err != nil {
		return nil, 0, err
	}
	for i, v := range g.Pix {
		if int(v) <= level {
			mask.Pix[i] = models.Foreground
		}
	}
	return mask, level, nil
}

// ApplyLocal thresholds g with the named neighbourhood method over a square window
// of the given radius.
func ApplyLocal(g *models.Gray, method string, radius int) (*models.Mask, error) {
	rule, err := lookupLocal(method)
	if err != nil {
		return nil, err
	}
	if radius < 1 {
		return nil, fmt.Errorf("invalid local radius %d", radius)
	}
	return applyLocal(g, radius, rule)
}
