package threshold

import (
	"errors"
	"math"
)

// ErrUndetermined is returned when a histogram method cannot settle on a level,
// e.g. for an empty or single-valued histogram.
var ErrUndetermined = errors.New("threshold could not be determined")

const epsilon = 2.220446049250313e-16

// Histogram is an 8-bit grey level histogram.
type Histogram [256]int

func (h Histogram) total() float64 {
	t := 0.0
	for _, v := range h {
		t += float64(v)
	}
	return t
}

func (h Histogram) bounds() (first, last int, ok bool) {
	first, last = -1, -1
	for i, v := range h {
		if v > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return first, last, first >= 0
}

// cumulative returns the normalised histogram and its class probabilities
// P1[i] = sum(p[0..i]) and P2[i] = 1 - P1[i].
func (h Histogram) cumulative() (norm, p1, p2 [256]float64) {
	total := h.total()
	for i, v := range h {
		norm[i] = float64(v) / total
	}
	p1[0] = norm[0]
	p2[0] = 1 - p1[0]
	for i := 1; i < 256; i++ {
		p1[i] = p1[i-1] + norm[i]
		p2[i] = 1 - p1[i]
	}
	return norm, p1, p2
}

func probabilityBounds(p1, p2 *[256]float64) (first, last int) {
	for i := 0; i < 256; i++ {
		if math.Abs(p1[i]) >= epsilon {
			first = i
			break
		}
	}
	last = 255
	for i := 255; i >= first; i-- {
		if math.Abs(p2[i]) >= epsilon {
			last = i
			break
		}
	}
	return first, last
}

// isoDataDefault is the iterative intermeans variant with the extreme bins ignored.
func isoDataDefault(h Histogram) (int, error) {
	data := h
	data[0] = 0
	data[255] = 0

	first, last, ok := data.bounds()
	if !ok || first >= last {
		return 128, nil
	}

	moving := first
	var result float64
	for {
		var sum1, sum2, sum3, sum4 float64
		for i := first; i <= moving; i++ {
			sum1 += float64(i) * float64(data[i])
			sum2 += float64(data[i])
		}
		for i := moving + 1; i <= last; i++ {
			sum3 += float64(i) * float64(data[i])
			sum4 += float64(data[i])
		}
		result = (sum1/sum2 + sum3/sum4) / 2
		moving++
		if !(float64(moving+1) <= result && moving < last-1) {
			break
		}
	}
	return int(math.Round(result)), nil
}

func huang(h Histogram) (int, error) {
	first, last, ok := h.bounds()
	if !ok {
		return 0, ErrUndetermined
	}
	if first == last {
		return first, nil
	}
	term := 1.0 / float64(last-first)

	var mu0, mu1 [256]float64
	sum, num := 0.0, 0.0
	for i := first; i < 256; i++ {
		sum += float64(i) * float64(h[i])
		num += float64(h[i])
		mu0[i] = sum / num
	}
	sum, num = 0, 0
	for i := last; i > 0; i-- {
		sum += float64(i) * float64(h[i])
		num += float64(h[i])
		mu1[i-1] = sum / num
	}

	fuzzy := func(i int, mu float64) float64 {
		x := 1.0 / (1.0 + term*math.Abs(float64(i)-mu))
		if x < 1e-06 || x > 0.999999 {
			return 0
		}
		return float64(h[i]) * (-x*math.Log(x) - (1-x)*math.Log(1-x))
	}

	threshold := -1
	minEnt := math.MaxFloat64
	for t := first; t <= last; t++ {
		ent := 0.0
		for i := 0; i <= t; i++ {
			ent += fuzzy(i, mu0[t])
		}
		for i := t + 1; i < 256; i++ {
			ent += fuzzy(i, mu1[t])
		}
		if ent < minEnt {
			minEnt = ent
			threshold = t
		}
	}
	return threshold, nil
}

func isBimodal(y *[256]float64) bool {
	modes := 0
	for k := 1; k < 255; k++ {
		if y[k-1] < y[k] && y[k+1] < y[k] {
			modes++
			if modes > 2 {
				return false
			}
		}
	}
	return modes == 2
}

// smoothUntilBimodal runs a 3-point mean filter until exactly two peaks remain.
func smoothUntilBimodal(h Histogram) ([256]float64, error) {
	var y [256]float64
	for i, v := range h {
		y[i] = float64(v)
	}
	for iter := 0; !isBimodal(&y); iter++ {
		if iter > 10000 {
			return y, ErrUndetermined
		}
		previous, current, next := 0.0, 0.0, y[0]
		for i := 0; i < 255; i++ {
			previous = current
			current = next
			next = y[i+1]
			y[i] = (previous + current + next) / 3
		}
		y[255] = (current + next) / 3
	}
	return y, nil
}

func intermodes(h Histogram) (int, error) {
	y, err := smoothUntilBimodal(h)
	if err != nil {
		return 0, err
	}
	tt := 0
	for i := 1; i < 255; i++ {
		if y[i-1] < y[i] && y[i+1] < y[i] {
			tt += i
		}
	}
	return int(math.Floor(float64(tt) / 2)), nil
}

func minimum(h Histogram) (int, error) {
	y, err := smoothUntilBimodal(h)
	if err != nil {
		return 0, err
	}
	for i := 1; i < 255; i++ {
		if y[i-1] > y[i] && y[i+1] >= y[i] {
			return i, nil
		}
	}
	return 0, ErrUndetermined
}

func isoData(h Histogram) (int, error) {
	g := 0
	for i := 1; i < 256; i++ {
		if h[i] > 0 {
			g = i + 1
			break
		}
	}
	for {
		var lo, totLo, hi, totHi int
		for i := 0; i < g+1 && i < 256; i++ {
			totLo += h[i]
			lo += h[i] * i
		}
		for i := g + 1; i < 256; i++ {
			totHi += h[i]
			hi += h[i] * i
		}
		if totLo > 0 && totHi > 0 {
			lo /= totLo
			hi /= totHi
			if g == int(math.Round(float64(lo+hi)/2)) {
				return g, nil
			}
		}
		g++
		if g > 254 {
			return 0, ErrUndetermined
		}
	}
}

func li(h Histogram) (int, error) {
	total := h.total()
	if total == 0 {
		return 0, ErrUndetermined
	}
	mean := 0.0
	for i := 1; i < 256; i++ {
		mean += float64(i) * float64(h[i])
	}
	mean /= total

	const tolerance = 0.5
	newThresh := mean
	threshold := 0
	for iter := 0; iter < 1000; iter++ {
		oldThresh := newThresh
		threshold = int(oldThresh + 0.5)

		var sumBack, numBack, sumObj, numObj float64
		for i := 0; i <= threshold && i < 256; i++ {
			sumBack += float64(i) * float64(h[i])
			numBack += float64(h[i])
		}
		for i := threshold + 1; i < 256; i++ {
			sumObj += float64(i) * float64(h[i])
			numObj += float64(h[i])
		}
		if numBack == 0 || numObj == 0 || sumBack == 0 {
			break
		}
		meanBack := sumBack / numBack
		meanObj := sumObj / numObj

		temp := (meanBack - meanObj) / (math.Log(meanBack) - math.Log(meanObj))
		if temp < -epsilon {
			newThresh = float64(int(temp - 0.5))
		} else {
			newThresh = float64(int(temp + 0.5))
		}
		if math.Abs(newThresh-oldThresh) <= tolerance {
			break
		}
	}
	return threshold, nil
}

func maxEntropy(h Histogram) (int, error) {
	if h.total() == 0 {
		return 0, ErrUndetermined
	}
	norm, p1, p2 := h.cumulative()
	first, last := probabilityBounds(&p1, &p2)

	threshold := -1
	maxEnt := math.SmallestNonzeroFloat64
	for t := first; t <= last; t++ {
		entBack := 0.0
		for i := 0; i <= t; i++ {
			if h[i] != 0 {
				entBack -= (norm[i] / p1[t]) * math.Log(norm[i]/p1[t])
			}
		}
		entObj := 0.0
		for i := t + 1; i < 256; i++ {
			if h[i] != 0 {
				entObj -= (norm[i] / p2[t]) * math.Log(norm[i]/p2[t])
			}
		}
		if tot := entBack + entObj; maxEnt < tot {
			maxEnt = tot
			threshold = t
		}
	}
	if threshold < 0 {
		return 0, ErrUndetermined
	}
	return threshold, nil
}

func mean(h Histogram) (int, error) {
	total := h.total()
	if total == 0 {
		return 0, ErrUndetermined
	}
	sum := 0.0
	for i, v := range h {
		sum += float64(i) * float64(v)
	}
	return int(math.Floor(sum / total)), nil
}

func moments(h Histogram) (int, error) {
	total := h.total()
	if total == 0 {
		return 0, ErrUndetermined
	}
	m0, m1, m2, m3 := 1.0, 0.0, 0.0, 0.0
	var histo [256]float64
	for i, v := range h {
		histo[i] = float64(v) / total
		di := float64(i)
		m1 += di * histo[i]
		m2 += di * di * histo[i]
		m3 += di * di * di * histo[i]
	}
	cd := m0*m2 - m1*m1
	if cd == 0 {
		return 0, ErrUndetermined
	}
	c0 := (-m2*m2 + m1*m3) / cd
	c1 := (m0*-m3 + m2*m1) / cd
	z0 := 0.5 * (-c1 - math.Sqrt(c1*c1-4*c0))
	z1 := 0.5 * (-c1 + math.Sqrt(c1*c1-4*c0))
	p0 := (z1 - m1) / (z1 - z0)

	sum := 0.0
	for i := 0; i < 256; i++ {
		sum += histo[i]
		if sum > p0 {
			return i, nil
		}
	}
	return 0, ErrUndetermined
}

func otsu(h Histogram) (int, error) {
	n := h.total()
	if n == 0 {
		return 0, ErrUndetermined
	}
	s := 0.0
	for k, v := range h {
		s += float64(k) * float64(v)
	}

	sk := 0.0
	n1 := float64(h[0])
	bcvMax := 0.0
	kStar := 0
	for k := 1; k < 255; k++ {
		sk += float64(k) * float64(h[k])
		n1 += float64(h[k])
		bcv := 0.0
		if denom := n1 * (n - n1); denom != 0 {
			num := (n1/n)*s - sk
			bcv = num * num / denom
		}
		if bcv >= bcvMax {
			bcvMax = bcv
			kStar = k
		}
	}
	return kStar, nil
}

func percentile(h Histogram) (int, error) {
	const ptile = 0.5
	total := h.total()
	if total == 0 {
		return 0, ErrUndetermined
	}
	threshold := -1
	best := 1.0
	partial := 0.0
	for i := 0; i < 256; i++ {
		partial += float64(h[i])
		if d := math.Abs(partial/total - ptile); d < best {
			best = d
			threshold = i
		}
	}
	return threshold, nil
}

func renyiEntropy(h Histogram) (int, error) {
	if h.total() == 0 {
		return 0, ErrUndetermined
	}
	norm, p1, p2 := h.cumulative()
	first, last := probabilityBounds(&p1, &p2)

	// alpha = 1 is the maximum entropy threshold.
	tStar2, maxEnt := 0, 0.0
	for t := first; t <= last; t++ {
		entBack, entObj := 0.0, 0.0
		for i := 0; i <= t; i++ {
			if h[i] != 0 {
				entBack -= (norm[i] / p1[t]) * math.Log(norm[i]/p1[t])
			}
		}
		for i := t + 1; i < 256; i++ {
			if h[i] != 0 {
				entObj -= (norm[i] / p2[t]) * math.Log(norm[i]/p2[t])
			}
		}
		if tot := entBack + entObj; tot > maxEnt {
			maxEnt = tot
			tStar2 = t
		}
	}

	renyi := func(alpha float64, power func(float64) float64) int {
		best, maxEnt := 0, 0.0
		term := 1.0 / (1.0 - alpha)
		for t := first; t <= last; t++ {
			entBack, entObj := 0.0, 0.0
			for i := 0; i <= t; i++ {
				entBack += power(norm[i] / p1[t])
			}
			for i := t + 1; i < 256; i++ {
				entObj += power(norm[i] / p2[t])
			}
			tot := 0.0
			if prod := entBack * entObj; prod > 0 {
				tot = term * math.Log(prod)
			}
			if tot > maxEnt {
				maxEnt = tot
				best = t
			}
		}
		return best
	}
	tStar1 := renyi(0.5, math.Sqrt)
	tStar3 := renyi(2, func(v float64) float64 { return v * v })

	if tStar2 < tStar1 {
		tStar1, tStar2 = tStar2, tStar1
	}
	if tStar3 < tStar2 {
		tStar2, tStar3 = tStar3, tStar2
	}
	if tStar2 < tStar1 {
		tStar1, tStar2 = tStar2, tStar1
	}

	var beta1, beta2, beta3 float64
	near := func(a, b int) bool { return absInt(a-b) <= 5 }
	switch {
	case near(tStar1, tStar2) && near(tStar2, tStar3):
		beta1, beta2, beta3 = 1, 2, 1
	case near(tStar1, tStar2):
		beta1, beta2, beta3 = 0, 1, 3
	case near(tStar2, tStar3):
		beta1, beta2, beta3 = 3, 1, 0
	default:
		beta1, beta2, beta3 = 1, 2, 1
	}

	omega := p1[tStar3] - p1[tStar1]
	opt := float64(tStar1)*(p1[tStar1]+0.25*omega*beta1) +
		0.25*float64(tStar2)*omega*beta2 +
		float64(tStar3)*(p2[tStar3]+0.25*omega*beta3)
	return int(opt), nil
}

func shanbhag(h Histogram) (int, error) {
	if h.total() == 0 {
		return 0, ErrUndetermined
	}
	norm, p1, p2 := h.cumulative()
	first, last := probabilityBounds(&p1, &p2)

	threshold := -1
	minEnt := math.MaxFloat64
	for t := first; t <= last; t++ {
		entBack := 0.0
		term := 0.5 / p1[t]
		for i := 1; i <= t; i++ {
			entBack -= norm[i] * math.Log(1-term*p1[i-1])
		}
		entBack *= term

		entObj := 0.0
		term = 0.5 / p2[t]
		for i := t + 1; i < 256; i++ {
			entObj -= norm[i] * math.Log(1-term*p2[i])
		}
		entObj *= term

		if tot := math.Abs(entBack - entObj); tot < minEnt {
			minEnt = tot
			threshold = t
		}
	}
	if threshold < 0 {
		return 0, ErrUndetermined
	}
	return threshold, nil
}

func triangle(h Histogram) (int, error) {
	data := h
	first, last, ok := data.bounds()
	if !ok {
		return 0, ErrUndetermined
	}
	lo, hi := first, last
	if lo > 0 {
		lo--
	}
	if hi < 255 {
		hi++
	}
	peak, peakCount := 0, 0
	for i, v := range data {
		if v > peakCount {
			peak = i
			peakCount = v
		}
	}

	inverted := false
	if peak-lo < hi-peak {
		inverted = true
		for l, r := 0, 255; l < r; l, r = l+1, r-1 {
			data[l], data[r] = data[r], data[l]
		}
		lo = 255 - hi
		peak = 255 - peak
	}
	if lo == peak {
		if inverted {
			return 255 - lo, nil
		}
		return lo, nil
	}

	nx := float64(data[peak])
	ny := float64(lo - peak)
	d := math.Sqrt(nx*nx + ny*ny)
	nx /= d
	ny /= d
	d = nx*float64(lo) + ny*float64(data[lo])

	split := lo
	splitDistance := 0.0
	for i := lo + 1; i <= peak; i++ {
		if nd := nx*float64(i) + ny*float64(data[i]) - d; nd > splitDistance {
			split = i
			splitDistance = nd
		}
	}
	split--

	if inverted {
		return 255 - split, nil
	}
	return split, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
