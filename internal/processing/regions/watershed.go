package regions

import (
	"fmt"

	"nucleus-sweep/internal/models"
)

// Marker values used when preparing a marker raster for watershed flooding.
const (
	MarkerUnknown    int32 = 0
	MarkerBackground int32 = 1
	MarkerBoundary   int32 = -1
)

// SeedMask marks the watershed seed candidates of mask. A foreground pixel is a
// candidate when its distance is at least fraction of the largest distance in its
// component; components holds the 8-connected labels of mask. Each connected blob
// of the result seeds one basin.
func SeedMask(dist []float32, components []int32, mask *models.Mask, fraction float64) (*models.Mask, error) {
	if len(dist) != len(mask.Pix) {
		return nil, fmt.Errorf("%w: %d distances for %dx%d mask", models.ErrDimensionMismatch, len(dist), mask.Width, mask.Height)
	}
	if len(components) != len(mask.Pix) {
		return nil, fmt.Errorf("%w: %d labels for %dx%d mask", models.ErrDimensionMismatch, len(components), mask.Width, mask.Height)
	}

	peak := make(map[int32]float32)
	for i, c := range components {
		if c > 0 && dist[i] > peak[c] {
			peak[c] = dist[i]
		}
	}

	candidates := &models.Mask{Width: mask.Width, Height: mask.Height, Pix: make([]uint8, len(mask.Pix))}
	for i, c := range components {
		if c > 0 && dist[i] > 0 && float64(dist[i]) >= fraction*float64(peak[c]) {
			candidates.Pix[i] = models.Foreground
		}
	}
	return candidates, nil
}

// WatershedMarkers turns seed labels into a marker raster: background is
// MarkerBackground, seed k becomes k+1 and the rest of the mask is left
// MarkerUnknown for flooding.
func WatershedMarkers(seeds []int32, mask *models.Mask) ([]int32, error) {
	if len(seeds) != len(mask.Pix) {
		return nil, fmt.Errorf("%w: %d seeds for %dx%d mask", models.ErrDimensionMismatch, len(seeds), mask.Width, mask.Height)
	}
	markers := make([]int32, len(seeds))
	for i, s := range seeds {
		switch {
		case mask.Pix[i] == models.Background:
			markers[i] = MarkerBackground
		case s > 0:
			markers[i] = s + 1
		default:
			markers[i] = MarkerUnknown
		}
	}
	return markers, nil
}

// FromWatershed reads the flooded marker raster back into regions. Boundary
// pixels inside mask that touch a single basin are given back to it; pixels on a
// ridge between two basins stay unassigned, so touching basins come back as
// separate regions.
func FromWatershed(markers []int32, mask *models.Mask) (models.RegionSet, error) {
	if len(markers) != len(mask.Pix) {
		return nil, fmt.Errorf("%w: %d markers for %dx%d mask", models.ErrDimensionMismatch, len(markers), mask.Width, mask.Height)
	}
	w, h := mask.Width, mask.Height

	labels := make([]int32, len(markers))
	for i, m := range markers {
		if m > MarkerBackground && mask.Pix[i] != models.Background {
			labels[i] = m - MarkerBackground
		}
	}

	for i, m := range markers {
		if m != MarkerBoundary || mask.Pix[i] == models.Background {
			continue
		}
		x, y := i%w, i/w
		var basin int32
		ridge := false
		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
				continue
			}
			nm := markers[n[1]*w+n[0]]
			if nm <= MarkerBackground {
				continue
			}
			if basin != 0 && nm-MarkerBackground != basin {
				ridge = true
				break
			}
			basin = nm - MarkerBackground
		}
		if !ridge {
			labels[i] = basin
		}
	}
	return FromLabels(labels, w, h)
}
