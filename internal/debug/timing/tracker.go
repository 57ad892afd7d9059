// Package timing accumulates wall-clock durations per named stage.
package timing

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

type Summary struct {
	Operation string
	Count     int
	Mean      time.Duration
	StdDev    time.Duration
	Max       time.Duration
	Total     time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
	}
}

// Start begins timing operation; call the returned func to record it.
// A nil Tracker is valid and records nothing.
func (tt *Tracker) Start(operation string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		tt.Observe(operation, d)
		return d
	}
}

func (tt *Tracker) Observe(operation string, d time.Duration) {
	if tt == nil {
		return
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.timings[operation] = append(tt.timings[operation], d)
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

// Summaries reports every operation sorted by name.
func (tt *Tracker) Summaries() []Summary {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	out := make([]Summary, 0, len(tt.timings))
	for op, timings := range tt.timings {
		if len(timings) == 0 {
			continue
		}
		xs := make([]float64, len(timings))
		s := Summary{Operation: op, Count: len(timings)}
		for i, d := range timings {
			xs[i] = float64(d)
			s.Total += d
			if d > s.Max {
				s.Max = d
			}
		}
		mean, std := stat.MeanStdDev(xs, nil)
		s.Mean = time.Duration(mean)
		if len(xs) > 1 {
			s.StdDev = time.Duration(std)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
