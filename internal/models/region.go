package models

import "image"

// Run is a horizontal span of object pixels [X0, X1) on row Y.
type Run struct {
	Y  int
	X0 int
	X1 int
}

// Region is one detected or annotated object, stored as run-length encoded rows.
type Region struct {
	Runs      []Run
	Area      int
	Perimeter float64
	Bounds    image.Rectangle
}

// RegionSet is the collection of objects produced for one image.
type RegionSet []Region

// MaskAndCount pairs a rasterized mask with the number of regions it was built from.
type MaskAndCount struct {
	Mask  *Mask
	Count int
}

// Segmentation is the output of one pipeline run on one image.
type Segmentation struct {
	ImageID string
	Width   int
	Height  int
	Regions RegionSet
}
