// Package deconvolution separates stain channels from RGB brightfield images using
// optical density unmixing with fixed stain vectors.
package deconvolution

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"nucleus-sweep/internal/models"
)

// Stain holds up to three RGB optical density vectors. A zero third vector is
// replaced by the complement of the first two.
type Stain struct {
	Name    string
	Vectors [3][3]float64
}

var stains = []Stain{
	{Name: "H&E", Vectors: [3][3]float64{
		{0.644211, 0.716556, 0.266844},
		{0.092789, 0.954111, 0.283111},
	}},
	{Name: "H&E 2", Vectors: [3][3]float64{
		{0.49015734, 0.76897085, 0.41040173},
		{0.04615336, 0.8420684, 0.5373925},
	}},
	{Name: "H DAB", Vectors: [3][3]float64{
		{0.650, 0.704, 0.286},
		{0.268, 0.570, 0.776},
	}},
}

var log255 = math.Log(255)

// Stains lists the supported stain names.
func Stains() []string {
	names := make([]string, len(stains))
	for i, s := range stains {
		names[i] = s.Name
	}
	return names
}

// LookupStain resolves a stain by name.
func LookupStain(name string) (Stain, error) {
	for _, s := range stains {
		if s.Name == name {
			return s, nil
		}
	}
	return Stain{}, fmt.Errorf("unknown stain %q", name)
}

// Unmixer holds the inverted stain matrix for one stain set.
type Unmixer struct {
	stain   Stain
	inverse *mat.Dense
}

// NewUnmixer normalises the stain vectors and inverts the OD mixing matrix.
func NewUnmixer(s Stain) (*Unmixer, error) {
	v := s.Vectors
	for i := 0; i < 2; i++ {
		if norm(v[i]) == 0 {
			return nil, fmt.Errorf("stain %q: vector %d is zero", s.Name, i+1)
		}
		v[i] = normalise(v[i])
	}
	if norm(v[2]) == 0 {
		for c := 0; c < 3; c++ {
			sq := v[0][c]*v[0][c] + v[1][c]*v[1][c]
			if sq < 1 {
				v[2][c] = math.Sqrt(1 - sq)
			}
		}
	}
	v[2] = normalise(v[2])
	for i := range v {
		for c := range v[i] {
			if v[i][c] == 0 {
				v[i][c] = 0.001
			}
		}
	}

	// Columns are stains, rows are R, G, B optical densities.
	mix := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for c := 0; c < 3; c++ {
			mix.Set(c, i, v[i][c])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(mix); err != nil {
		return nil, fmt.Errorf("stain %q: failed to invert stain matrix: %w", s.Name, err)
	}
	return &Unmixer{stain: s, inverse: &inv}, nil
}

// Unmix converts interleaved BGR bytes into three 8-bit stain images. Dense stain
// reads dark, absent stain reads 255.
func (u *Unmixer) Unmix(bgr []uint8, width, height int) ([3]*models.Gray, error) {
	var out [3]*models.Gray
	n := width * height
	if width <= 0 || height <= 0 || len(bgr) != 3*n {
		return out, fmt.Errorf("%w: %d bytes for %dx%d BGR image", models.ErrDimensionMismatch, len(bgr), width, height)
	}

	od := mat.NewDense(n, 3, nil)
	for p := 0; p < n; p++ {
		b, g, r := bgr[3*p], bgr[3*p+1], bgr[3*p+2]
		od.Set(p, 0, opticalDensity(r))
		od.Set(p, 1, opticalDensity(g))
		od.Set(p, 2, opticalDensity(b))
	}

	var conc mat.Dense
	conc.Mul(od, u.inverse.T())

	for i := range out {
		g, err := models.NewGray(width, height)
		if err != nil {
			return out, err
		}
		for p := 0; p < n; p++ {
			g.Pix[p] = transmittance(conc.At(p, i))
		}
		out[i] = g
	}
	return out, nil
}

func opticalDensity(v uint8) float64 {
	return -(255 * math.Log((float64(v)+1)/255)) / log255
}

func transmittance(c float64) uint8 {
	v := math.Exp(-(c - 255) * log255 / 255)
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(math.Floor(v + 0.5))
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func normalise(v [3]float64) [3]float64 {
	n := norm(v)
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}
