package threshold

import (
	"math"

	"nucleus-sweep/internal/models"
)

const (
	bernsenContrast = 15.0
	niblackK        = 0.2
	phansalkarK     = 0.25
	phansalkarR     = 0.5
	phansalkarP     = 2.0
	phansalkarQ     = 10.0
	sauvolaK        = 0.5
	sauvolaR        = 128.0
	defaultMidValue = 128.0
	defaultOffsetC  = 0.0
)

// window is the grey level population of the square neighbourhood around one pixel.
// Values are inverted so that dark objects read as high values.
type window struct {
	hist  [256]int
	count int
	sum   float64
	sumSq float64
}

func (w *window) add(v uint8, n int) {
	w.hist[v] += n
	w.count += n
	w.sum += float64(v) * float64(n)
	w.sumSq += float64(v) * float64(v) * float64(n)
}

func (w *window) mean() float64 {
	return w.sum / float64(w.count)
}

func (w *window) stdDev() float64 {
	m := w.mean()
	v := w.sumSq/float64(w.count) - m*m
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

func (w *window) min() float64 {
	for i, c := range w.hist {
		if c > 0 {
			return float64(i)
		}
	}
	return 0
}

func (w *window) max() float64 {
	for i := 255; i >= 0; i-- {
		if w.hist[i] > 0 {
			return float64(i)
		}
	}
	return 0
}

func (w *window) median() float64 {
	half := (w.count + 1) / 2
	seen := 0
	for i, c := range w.hist {
		seen += c
		if seen >= half {
			return float64(i)
		}
	}
	return 255
}

// localRule decides whether the inverted pixel value v is object given its neighbourhood.
type localRule func(v float64, w *window) bool

func bernsen(v float64, w *window) bool {
	lo, hi := w.min(), w.max()
	mid := (lo + hi) / 2
	if hi-lo < bernsenContrast {
		return mid >= defaultMidValue
	}
	return v >= mid
}

func contrast(v float64, w *window) bool {
	return w.max()-v <= v-w.min()
}

func localMean(v float64, w *window) bool {
	return v > w.mean()-defaultOffsetC
}

func localMedian(v float64, w *window) bool {
	return v > w.median()-defaultOffsetC
}

func midGrey(v float64, w *window) bool {
	return v > (w.min()+w.max())/2-defaultOffsetC
}

func niblack(v float64, w *window) bool {
	return v > w.mean()+niblackK*w.stdDev()-defaultOffsetC
}

func localOtsu(v float64, w *window) bool {
	t, err := otsu(Histogram(w.hist))
	if err != nil {
		return false
	}
	return v > float64(t)
}

func phansalkar(v float64, w *window) bool {
	m := w.mean() / 255
	sd := w.stdDev() / 255
	t := m * (1 + phansalkarP*math.Exp(-phansalkarQ*m) + phansalkarK*(sd/phansalkarR-1))
	return v/255 > t
}

func sauvola(v float64, w *window) bool {
	m := w.mean()
	return v > m*(1+sauvolaK*(w.stdDev()/sauvolaR-1))
}

// applyLocal slides a (2r+1)x(2r+1) window over the image, clamped at the borders,
// and marks pixels the rule accepts as foreground.
func applyLocal(g *models.Gray, radius int, rule localRule) (*models.Mask, error) {
	mask, err := models.NewMask(g.Width, g.Height)
	if err != nil {
		return nil, err
	}

	inv := func(x, y int) uint8 { return 255 - g.At(x, y) }

	for y := 0; y < g.Height; y++ {
		y0 := max(0, y-radius)
		y1 := min(g.Height-1, y+radius)

		var w window
		for x := 0; x <= min(g.Width-1, radius); x++ {
			for yy := y0; yy <= y1; yy++ {
				w.add(inv(x, yy), 1)
			}
		}

		for x := 0; x < g.Width; x++ {
			if x > 0 {
				if out := x - radius - 1; out >= 0 {
					for yy := y0; yy <= y1; yy++ {
						w.add(inv(out, yy), -1)
					}
				}
				if in := x + radius; in < g.Width {
					for yy := y0; yy <= y1; yy++ {
						w.add(inv(in, yy), 1)
					}
				}
			}
			if rule(float64(inv(x, y)), &w) {
				mask.SetForeground(x, y)
			}
		}
	}
	return mask, nil
}
