package onset

import (
	"math"
	"sort"
)

// FluxHistory is a fixed-capacity sliding window of recent flux values. Once
// full, each Push evicts the oldest value.
type FluxHistory struct {
	buf     []float64
	next    int
	n       int
	scratch []float64
}

// NewFluxHistory returns an empty history holding at most capacity values.
// capacity must be positive.
func NewFluxHistory(capacity int) *FluxHistory {
	return &FluxHistory{
		buf:     make([]float64, capacity),
		scratch: make([]float64, 0, capacity),
	}
}

// Push appends v, dropping the oldest value when the window is full.
func (h *FluxHistory) Push(v float64) {
	h.buf[h.next] = v
	h.next = (h.next + 1) % len(h.buf)
	if h.n < len(h.buf) {
		h.n++
	}
}

// Len returns the number of values held.
func (h *FluxHistory) Len() int { return h.n }

// Cap returns the window capacity.
func (h *FluxHistory) Cap() int { return len(h.buf) }

// Full reports whether the window holds Cap values.
func (h *FluxHistory) Full() bool { return h.n == len(h.buf) }

// Reset empties the window.
func (h *FluxHistory) Reset() {
	h.next, h.n = 0, 0
}

// Percentile returns the p-th percentile (0..100) of the held values using
// linear interpolation between closest ranks. An empty history yields 0.
func (h *FluxHistory) Percentile(p float64) float64 {
	if h.n == 0 {
		return 0
	}
	// Until the first wrap buf[:n] holds exactly the pushed values.
	h.scratch = append(h.scratch[:0], h.buf[:h.n]...)
	return percentile(h.scratch, p)
}

// percentile sorts xs in place.
func percentile(xs []float64, p float64) float64 {
	sort.Float64s(xs)
	switch {
	case p <= 0:
		return xs[0]
	case p >= 100:
		return xs[len(xs)-1]
	}
	rank := p / 100 * float64(len(xs)-1)
	lo := math.Floor(rank)
	i := int(lo)
	if i+1 >= len(xs) {
		return xs[i]
	}
	return xs[i] + (rank-lo)*(xs[i+1]-xs[i])
}
