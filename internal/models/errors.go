package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the scoring, sweep and pipeline packages.
var (
	// ErrLoad indicates an image or annotation file could not be read or decoded.
	ErrLoad = errors.New("load error")

	// ErrUnsupportedMethod indicates a threshold method name is not recognised.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrDimensionMismatch indicates two rasters compared together differ in size.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrMissingGoldStandard indicates an image has no cached ground-truth entry.
	ErrMissingGoldStandard = errors.New("missing gold standard")

	// ErrEmptyCorpus indicates there are no images to average over.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrNoScoredImages indicates every image of a combo failed.
	ErrNoScoredImages = errors.New("no images scored")

	// ErrWrite indicates persisting results failed.
	ErrWrite = errors.New("write error")

	// ErrTimeout indicates a pipeline invocation exceeded its time budget.
	ErrTimeout = errors.New("timeout")

	// ErrEmptyPositiveClass indicates TP+FN is zero so TPR is undefined.
	ErrEmptyPositiveClass = errors.New("empty positive class")

	// ErrEmptyNegativeClass indicates FP+TN is zero so FPR is undefined.
	ErrEmptyNegativeClass = errors.New("empty negative class")

	// ErrEmptyUnion indicates TP+FP+FN is zero so the Jaccard index is undefined.
	ErrEmptyUnion = errors.New("empty union")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrLoad, "LoadError"},
	{ErrUnsupportedMethod, "UnsupportedMethod"},
	{ErrDimensionMismatch, "DimensionMismatch"},
	{ErrMissingGoldStandard, "MissingGoldStandard"},
	{ErrEmptyCorpus, "EmptyCorpus"},
	{ErrNoScoredImages, "NoScoredImages"},
	{ErrWrite, "WriteError"},
	{ErrTimeout, "Timeout"},
	{ErrEmptyPositiveClass, "EmptyPositiveClass"},
	{ErrEmptyNegativeClass, "EmptyNegativeClass"},
	{ErrEmptyUnion, "EmptyUnion"},
}

// ErrorKind names the taxonomy entry err belongs to, or "Unknown".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// ImageError attaches an image identifier to a per-image failure.
type ImageError struct {
	ImageID string
	Err     error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s: %v", e.ImageID, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// ComboError attaches a method pair to a per-combo failure.
type ComboError struct {
	Key ComboKey
	Err error
}

func (e *ComboError) Error() string {
	return fmt.Sprintf("combo %s: %v", e.Key.Name(), e.Err)
}

func (e *ComboError) Unwrap() error {
	return e.Err
}
