// Package regions converts between label rasters, run-length encoded regions and
// binary masks, and provides the particle bookkeeping the segmentation pipeline needs.
package regions

import (
	"fmt"
	"image"
	"math"
	"sort"

	"nucleus-sweep/internal/models"
)

// cornerWeight is subtracted from the crack length for every boundary turn, giving
// the traced polygon length with diagonal corners cut.
var cornerWeight = 2 - math.Sqrt2

// FromLabels builds one region per distinct positive label, ordered by label.
func FromLabels(labels []int32, width, height int) (models.RegionSet, error) {
	if width <= 0 || height <= 0 || len(labels) != width*height {
		return nil, fmt.Errorf("%w: %d labels for %dx%d raster", models.ErrDimensionMismatch, len(labels), width, height)
	}

	byLabel := make(map[int32]*models.Region)
	for y := 0; y < height; y++ {
		row := labels[y*width : (y+1)*width]
		for x := 0; x < width; {
			l := row[x]
			if l <= 0 {
				x++
				continue
			}
			x0 := x
			for x < width && row[x] == l {
				x++
			}
			r, ok := byLabel[l]
			if !ok {
				r = &models.Region{Bounds: image.Rect(x0, y, x, y+1)}
				byLabel[l] = r
			}
			r.Runs = append(r.Runs, models.Run{Y: y, X0: x0, X1: x})
			r.Area += x - x0
			r.Bounds = r.Bounds.Union(image.Rect(x0, y, x, y+1))
		}
	}

	keys := make([]int32, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	set := make(models.RegionSet, 0, len(keys))
	for _, k := range keys {
		r := byLabel[k]
		r.Perimeter = Perimeter(r)
		set = append(set, *r)
	}
	return set, nil
}

// Perimeter is the traced boundary length of r: every pixel edge between the
// region and the outside counts 1, and each boundary turn removes 2-sqrt(2).
func Perimeter(r *models.Region) float64 {
	if r.Area == 0 {
		return 0
	}
	bw := r.Bounds.Dx() + 2
	bh := r.Bounds.Dy() + 2
	in := make([]bool, bw*bh)
	for _, run := range r.Runs {
		y := run.Y - r.Bounds.Min.Y + 1
		for x := run.X0; x < run.X1; x++ {
			in[y*bw+x-r.Bounds.Min.X+1] = true
		}
	}
	at := func(x, y int) bool { return in[y*bw+x] }

	edges := 0
	for y := 1; y < bh-1; y++ {
		for x := 1; x < bw-1; x++ {
			if !at(x, y) {
				continue
			}
			for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				if !at(x+d[0], y+d[1]) {
					edges++
				}
			}
		}
	}

	corners := 0
	for vy := 1; vy < bh; vy++ {
		for vx := 1; vx < bw; vx++ {
			a, b := at(vx-1, vy-1), at(vx, vy-1)
			c, d := at(vx-1, vy), at(vx, vy)
			n := 0
			for _, v := range []bool{a, b, c, d} {
				if v {
					n++
				}
			}
			switch {
			case n == 1 || n == 3:
				corners++
			case n == 2 && a == d:
				corners += 2
			}
		}
	}

	return float64(edges) - float64(corners)*cornerWeight
}

// ToMask rasterizes regions onto a width x height mask and reports how many regions
// were drawn. A run outside the raster is a dimension mismatch.
func ToMask(set models.RegionSet, width, height int) (models.MaskAndCount, error) {
	m, err := models.NewMask(width, height)
	if err != nil {
		return models.MaskAndCount{}, err
	}
	for i := range set {
		if err := Paint(m, &set[i]); err != nil {
			return models.MaskAndCount{}, err
		}
	}
	return models.MaskAndCount{Mask: m, Count: len(set)}, nil
}

// Paint sets every pixel of r to foreground on m.
func Paint(m *models.Mask, r *models.Region) error {
	for _, run := range r.Runs {
		if run.Y < 0 || run.Y >= m.Height || run.X0 < 0 || run.X1 > m.Width || run.X0 > run.X1 {
			return fmt.Errorf("%w: run y=%d x=[%d,%d) outside %dx%d",
				models.ErrDimensionMismatch, run.Y, run.X0, run.X1, m.Width, m.Height)
		}
		row := m.Pix[run.Y*m.Width : (run.Y+1)*m.Width]
		for x := run.X0; x < run.X1; x++ {
			row[x] = models.Foreground
		}
	}
	return nil
}

// Union paints all regions of every set onto one mask.
func Union(width, height int, sets ...models.RegionSet) (*models.Mask, error) {
	m, err := models.NewMask(width, height)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		for i := range set {
			if err := Paint(m, &set[i]); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// FillHoles turns every background pixel not 4-connected to the border into foreground.
func FillHoles(m *models.Mask) *models.Mask {
	w, h := m.Width, m.Height
	reached := make([]bool, len(m.Pix))
	stack := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		i := y*w + x
		if reached[i] || m.Pix[i] != models.Background {
			return
		}
		reached[i] = true
		stack = append(stack, i)
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	out := &models.Mask{Width: w, Height: h, Pix: make([]uint8, len(m.Pix))}
	for i := range out.Pix {
		if !reached[i] {
			out.Pix[i] = models.Foreground
		}
	}
	return out
}

// Intersect keeps the foreground of m only where clip is foreground.
func Intersect(m, clip *models.Mask) (*models.Mask, error) {
	if !m.SameSize(clip) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", models.ErrDimensionMismatch, m.Width, m.Height, clip.Width, clip.Height)
	}
	out := &models.Mask{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	for i, v := range m.Pix {
		if v != models.Background && clip.Pix[i] != models.Background {
			out.Pix[i] = models.Foreground
		}
	}
	return out, nil
}

// FilterMinArea drops regions smaller than minArea pixels.
func FilterMinArea(set models.RegionSet, minArea int) models.RegionSet {
	out := make(models.RegionSet, 0, len(set))
	for _, r := range set {
		if r.Area >= minArea {
			out = append(out, r)
		}
	}
	return out
}

// Split partitions regions into normal and abnormal ones. A region is abnormal when
// its area exceeds areaMax or its perimeter exceeds perimeterMax.
func Split(set models.RegionSet, areaMax int, perimeterMax float64) (normal, abnormal models.RegionSet) {
	for _, r := range set {
		if r.Area > areaMax || r.Perimeter > perimeterMax {
			abnormal = append(abnormal, r)
		} else {
			normal = append(normal, r)
		}
	}
	return normal, abnormal
}

// Rasterizer is the mask extraction collaborator backed by ToMask.
type Rasterizer struct{}

func (Rasterizer) ToMask(set models.RegionSet, width, height int) (models.MaskAndCount, error) {
	return ToMask(set, width, height)
}
