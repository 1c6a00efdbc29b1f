// Package mock provides test doubles for the wakeword package interfaces.
package mock

import (
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/wakeword"
)

// Engine is a mock implementation of wakeword.Engine. It reports a detection
// on the calls whose zero-based index is listed in DetectOn.
type Engine struct {
	mu sync.Mutex

	// DetectOn lists the call indices that return keyword index 0.
	DetectOn map[int]bool

	// Err, if non-nil, is returned by every call.
	Err error

	calls   int
	pending int
}

// Process implements wakeword.Engine.
func (e *Engine) Process([]int16) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if e.Err != nil {
		return wakeword.NoDetection, e.Err
	}
	if e.pending > 0 {
		e.pending--
		return 0, nil
	}
	if e.DetectOn[i] {
		return 0, nil
	}
	return wakeword.NoDetection, nil
}

// Trigger makes the next call report a detection. Thread-safe.
func (e *Engine) Trigger() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending++
}

// Calls returns the number of Process calls. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ wakeword.Engine = (*Engine)(nil)
