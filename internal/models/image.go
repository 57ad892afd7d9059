package models

import (
	"fmt"
	"image"
)

// Background is the pixel value treated as background in masks and grey images.
const Background uint8 = 0

// Foreground is the value written for mask pixels that belong to an object.
const Foreground uint8 = 255

// Gray is an 8-bit single channel raster stored row-major.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGray allocates a zeroed grey raster.
func NewGray(width, height int) (*Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	return &Gray{Width: width, Height: height, Pix: make([]uint8, width*height)}, nil
}

// At returns the value at (x, y). Coordinates must be in bounds.
func (g *Gray) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Set writes the value at (x, y). Coordinates must be in bounds.
func (g *Gray) Set(x, y int, v uint8) {
	g.Pix[y*g.Width+x] = v
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &Gray{Width: g.Width, Height: g.Height, Pix: pix}
}

// Bounds returns the raster rectangle anchored at the origin.
func (g *Gray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// Histogram counts pixel values.
func (g *Gray) Histogram() [256]int {
	var h [256]int
	for _, v := range g.Pix {
		h[v]++
	}
	return h
}

// Mask is a binary raster. A pixel is foreground when its value differs from Background.
// Masks are read-only once handed to scoring.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	return &Mask{Width: width, Height: height, Pix: make([]uint8, width*height)}, nil
}

// MaskFromRows builds a mask from rows of 0/1 values. Handy for small fixtures.
func MaskFromRows(rows [][]uint8) (*Mask, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty mask rows")
	}
	m, err := NewMask(len(rows[0]), len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != m.Width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", y, len(row), m.Width)
		}
		for x, v := range row {
			if v != Background {
				m.Pix[y*m.Width+x] = Foreground
			}
		}
	}
	return m, nil
}

// IsForeground reports whether (x, y) is an object pixel.
func (m *Mask) IsForeground(x, y int) bool {
	return m.Pix[y*m.Width+x] != Background
}

// SetForeground marks (x, y) as an object pixel.
func (m *Mask) SetForeground(x, y int) {
	m.Pix[y*m.Width+x] = Foreground
}

// SameSize reports whether both masks have identical dimensions.
func (m *Mask) SameSize(other *Mask) bool {
	return m.Width == other.Width && m.Height == other.Height
}

// ForegroundCount returns the number of object pixels.
func (m *Mask) ForegroundCount() int {
	n := 0
	for _, v := range m.Pix {
		if v != Background {
			n++
		}
	}
	return n
}
