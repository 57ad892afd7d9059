package regions

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nucleus-sweep/internal/models"
)

func discs(t *testing.T, w, h int, centers [][2]int, radius int) *models.Mask {
	t.Helper()
	m, err := models.NewMask(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for _, c := range centers {
				dx, dy := x-c[0], y-c[1]
				if dx*dx+dy*dy <= radius*radius {
					m.SetForeground(x, y)
				}
			}
		}
	}
	return m
}

// bruteDistance is the Euclidean distance of every foreground pixel to the
// nearest background pixel.
func bruteDistance(m *models.Mask) []float32 {
	dist := make([]float32, len(m.Pix))
	for i, v := range m.Pix {
		if v == models.Background {
			continue
		}
		x, y := i%m.Width, i/m.Width
		best := math.Inf(1)
		for j, u := range m.Pix {
			if u != models.Background {
				continue
			}
			dx, dy := float64(j%m.Width-x), float64(j/m.Width-y)
			if d := math.Hypot(dx, dy); d < best {
				best = d
			}
		}
		dist[i] = float32(best)
	}
	return dist
}

func onePerDisc(m *models.Mask) []int32 {
	labels := make([]int32, len(m.Pix))
	for i, v := range m.Pix {
		if v != models.Background {
			labels[i] = 1
		}
	}
	return labels
}

func TestSeedMaskSeparatesTouchingDiscs(t *testing.T) {
	m := discs(t, 50, 30, [][2]int{{15, 15}, {33, 15}}, 10)
	require.True(t, m.IsForeground(24, 15), "discs must touch")

	seeds, err := SeedMask(bruteDistance(m), onePerDisc(m), m, 0.6)
	require.NoError(t, err)
	assert.True(t, seeds.IsForeground(15, 15))
	assert.True(t, seeds.IsForeground(33, 15))
	for y := 0; y < 30; y++ {
		assert.False(t, seeds.IsForeground(24, y), "neck column must not be a seed")
	}
}

func TestSeedMaskUsesPeakPerComponent(t *testing.T) {
	// A large and a small disc that do not touch: each is measured against its own
	// peak, so the small disc still gets a seed.
	m := discs(t, 60, 30, [][2]int{{15, 15}, {45, 15}}, 10)
	small := discs(t, 60, 30, [][2]int{{45, 15}}, 3)
	labels := make([]int32, len(m.Pix))
	for i, v := range m.Pix {
		if v == models.Background {
			continue
		}
		labels[i] = 1
		if i%60 > 30 {
			labels[i] = 2
		}
	}
	for i, v := range m.Pix {
		if i%60 > 30 && v != models.Background && small.Pix[i] == models.Background {
			m.Pix[i] = models.Background
			labels[i] = 0
		}
	}

	seeds, err := SeedMask(bruteDistance(m), labels, m, 0.5)
	require.NoError(t, err)
	assert.True(t, seeds.IsForeground(15, 15))
	assert.True(t, seeds.IsForeground(45, 15))
	assert.False(t, seeds.IsForeground(15, 6), "rim of the large disc is below its peak fraction")
}

func TestSeedMaskDimensionMismatch(t *testing.T) {
	m := discs(t, 10, 10, [][2]int{{5, 5}}, 3)
	_, err := SeedMask(make([]float32, 3), onePerDisc(m), m, 0.5)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	_, err = SeedMask(bruteDistance(m), make([]int32, 3), m, 0.5)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestWatershedMarkersAndBack(t *testing.T) {
	m, err := models.MaskFromRows([][]uint8{
		{1, 1, 0, 1},
		{1, 1, 0, 1},
	})
	require.NoError(t, err)
	seeds := []int32{
		1, 0, 0, 2,
		0, 0, 0, 0,
	}
	markers, err := WatershedMarkers(seeds, m)
	require.NoError(t, err)
	assert.Equal(t, []int32{
		2, 0, 1, 3,
		0, 0, 1, 0,
	}, markers)

	// Flood result: (1,1) only touches basin 2, (1,0) is a ridge between basins 2 and 3.
	wide, err := models.MaskFromRows([][]uint8{
		{1, 1, 1},
		{1, 1, 1},
	})
	require.NoError(t, err)
	flooded := []int32{
		2, MarkerBoundary, 3,
		2, MarkerBoundary, 2,
	}
	set, err := FromWatershed(flooded, wide)
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, 4, set[0].Area)
	assert.Equal(t, 1, set[1].Area)
}

func TestFromWatershedDimensionMismatch(t *testing.T) {
	m, err := models.NewMask(2, 2)
	require.NoError(t, err)
	_, err = FromWatershed([]int32{1}, m)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}
