package voice

// VADWindow is a bounded FIFO of per-frame speech decisions. When full, each
// Push evicts the oldest decision.
type VADWindow struct {
	buf    []bool
	next   int
	n      int
	voiced int
}

// NewVADWindow returns an empty window holding at most capacity decisions.
func NewVADWindow(capacity int) *VADWindow {
	return &VADWindow{buf: make([]bool, capacity)}
}

// Push appends one decision.
func (w *VADWindow) Push(speech bool) {
	if w.n == len(w.buf) {
		if w.buf[w.next] {
			w.voiced--
		}
	} else {
		w.n++
	}
	w.buf[w.next] = speech
	if speech {
		w.voiced++
	}
	w.next = (w.next + 1) % len(w.buf)
}

// Len returns the number of decisions held.
func (w *VADWindow) Len() int { return w.n }

// Full reports whether the window is at capacity.
func (w *VADWindow) Full() bool { return w.n == len(w.buf) }

// Fraction returns the share of speech decisions, or 0 when empty.
func (w *VADWindow) Fraction() float64 {
	if w.n == 0 {
		return 0
	}
	return float64(w.voiced) / float64(w.n)
}

// Active reports whether the speaker should still be considered talking: the
// window is not yet full, or its speech fraction exceeds threshold.
func (w *VADWindow) Active(threshold float64) bool {
	return !w.Full() || w.Fraction() > threshold
}
