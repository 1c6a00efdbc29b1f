// Package energy implements a root-mean-square energy voice activity
// detector. It has no model and suits quiet rooms and tests.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/kupo/pkg/provider/vad"
)

// DefaultThreshold is the RMS level, in 16-bit PCM units, at or above which a
// window counts as speech. 300 corresponds to near-silence.
const DefaultThreshold = 300.0

// Engine implements vad.Engine by thresholding RMS energy.
type Engine struct {
	threshold float64
}

// New returns an engine with the given RMS threshold. A non-positive
// threshold selects [DefaultThreshold].
func New(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{threshold: threshold}
}

// Threshold returns the configured RMS threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// IsSpeech implements vad.Engine.
func (e *Engine) IsSpeech(pcm []byte, _ int) (bool, error) {
	if len(pcm) < 2 || len(pcm)%2 != 0 {
		return false, fmt.Errorf("%w: %d bytes", vad.ErrUnsupportedWindow, len(pcm))
	}
	return RMS(pcm) >= e.threshold, nil
}

// RMS returns the root-mean-square of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

var _ vad.Engine = (*Engine)(nil)
