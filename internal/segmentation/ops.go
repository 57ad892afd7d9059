package segmentation

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"nucleus-sweep/internal/models"
	"nucleus-sweep/internal/opencv/safe"
	"nucleus-sweep/internal/processing/regions"
)

// seedFraction is the share of a particle's peak distance a pixel needs to seed
// its own watershed basin.
const seedFraction = 0.5

// despeckle applies a 3x3 median filter to a mask.
func despeckle(m *models.Mask, tracker safe.MemoryTracker) (*models.Mask, error) {
	src, err := safe.FromMask(m, tracker, "despeckle_src")
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	gocv.MedianBlur(src.GetMat(), &dst, 3)
	out, err := safe.Adopt(dst, tracker, "despeckle_dst")
	if err != nil {
		return nil, fmt.Errorf("median filter failed: %w", err)
	}
	defer out.Close()

	return out.ToMask()
}

// labelComponents labels the 8-connected foreground components of m 1..n.
// Background is 0.
func labelComponents(m *models.Mask, tracker safe.MemoryTracker) ([]int32, int, error) {
	src, err := safe.FromMask(m, tracker, "components_src")
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	labelMat := gocv.NewMat()
	gocv.ConnectedComponents(src.GetMat(), &labelMat)
	labels, err := safe.Adopt(labelMat, tracker, "components_labels")
	if err != nil {
		return nil, 0, fmt.Errorf("connected components failed: %w", err)
	}
	defer labels.Close()

	raw, err := labels.Int32s()
	if err != nil {
		return nil, 0, err
	}
	var n int32
	for _, l := range raw {
		if l > n {
			n = l
		}
	}
	return raw, int(n), nil
}

// particles returns the 8-connected components of m with at least minArea pixels.
func particles(m *models.Mask, minArea int, tracker safe.MemoryTracker) (models.RegionSet, error) {
	raw, _, err := labelComponents(m, tracker)
	if err != nil {
		return nil, err
	}
	set, err := regions.FromLabels(raw, m.Width, m.Height)
	if err != nil {
		return nil, err
	}
	return regions.FilterMinArea(set, minArea), nil
}

// distanceMap is the Euclidean distance of every foreground pixel of m to the
// nearest background pixel.
func distanceMap(m *models.Mask, tracker safe.MemoryTracker) ([]float32, error) {
	src, err := safe.FromMask(m, tracker, "distance_src")
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	nearest := gocv.NewMat()
	defer nearest.Close()
	gocv.DistanceTransform(src.GetMat(), &dst, &nearest, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	dist, err := safe.Adopt(dst, tracker, "distance_map")
	if err != nil {
		return nil, fmt.Errorf("distance transform failed: %w", err)
	}
	defer dist.Close()

	return dist.Float32s()
}

// watershed splits touching particles of set along the ridges of their distance
// map and returns the resulting regions with at least minArea pixels.
func watershed(set models.RegionSet, width, height, minArea int, tracker safe.MemoryTracker) (models.RegionSet, error) {
	if len(set) == 0 {
		return nil, nil
	}
	mask, err := regions.Union(width, height, set)
	if err != nil {
		return nil, err
	}

	dist, err := distanceMap(mask, tracker)
	if err != nil {
		return nil, err
	}
	components, _, err := labelComponents(mask, tracker)
	if err != nil {
		return nil, err
	}
	candidates, err := regions.SeedMask(dist, components, mask, seedFraction)
	if err != nil {
		return nil, err
	}
	seeds, count, err := labelComponents(candidates, tracker)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return regions.FilterMinArea(set, minArea), nil
	}
	markers, err := regions.WatershedMarkers(seeds, mask)
	if err != nil {
		return nil, err
	}

	relief, err := reliefImage(dist, width, height, tracker)
	if err != nil {
		return nil, err
	}
	defer relief.Close()

	markerMat, err := safe.FromInt32s(markers, width, height, tracker, "watershed_markers")
	if err != nil {
		return nil, err
	}
	defer markerMat.Close()

	gocv.Watershed(relief.GetMat(), markerMat.Ptr())

	flooded, err := markerMat.Int32s()
	if err != nil {
		return nil, err
	}
	split, err := regions.FromWatershed(flooded, mask)
	if err != nil {
		return nil, err
	}
	return regions.FilterMinArea(split, minArea), nil
}

// reliefImage renders the inverted distance map as a 3-channel image so basins
// fill from the particle centres outwards.
func reliefImage(dist []float32, width, height int, tracker safe.MemoryTracker) (*safe.Mat, error) {
	var peak float32
	for _, d := range dist {
		if d > peak {
			peak = d
		}
	}
	g, err := models.NewGray(width, height)
	if err != nil {
		return nil, err
	}
	for i, d := range dist {
		v := 255.0
		if peak > 0 {
			v = 255 - math.Round(float64(d)*255/float64(peak))
		}
		g.Pix[i] = uint8(v)
	}

	grey, err := safe.FromGray(g, tracker, "relief_grey")
	if err != nil {
		return nil, err
	}
	defer grey.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(grey.GetMat(), &bgr, gocv.ColorGrayToBGR)
	return safe.Adopt(bgr, tracker, "relief_bgr")
}
