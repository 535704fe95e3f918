package fleet

import (
	"math"
	"slices"
	"sync"
)

// responseWindow keeps the last N response times in seconds and their median.
type responseWindow struct {
	mu      sync.Mutex
	size    int
	samples []float64
	median  float64
}

func newResponseWindow(size int, seed float64) *responseWindow {
	if size <= 0 {
		size = 1
	}
	w := &responseWindow{size: size}
	w.add(seed)
	return w
}

// add appends v, dropping the oldest sample when full, and returns the new median.
func (w *responseWindow) add(v float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, v)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
	w.median = median(w.samples)
	return w.median
}

func (w *responseWindow) Median() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.median
}

func (w *responseWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// qos blends battery, latency and the previous score into a new score in [0, 100].
// soc and prev are percentages, responseTime and reference are seconds.
func qos(p Policy, soc, responseTime, reference float64, prev int, excepted bool) int {
	q := 1.0
	if excepted {
		q = math.Sqrt(float64(p.WarningQoS) / 100)
	}

	socN := soc / 100
	rtN := 1.0
	if responseTime > 0 {
		rtN = math.Min(1, reference/responseTime)
	}
	prevN := float64(prev) / 100

	score := math.Min(1, (prevN+socN*rtN*q)/2)
	if score <= p.QoSFloor {
		return 0
	}
	return int(score * 100)
}
