// Package audio defines the frame type that flows from the capture device to
// every audio actor, the capture and playback capability interfaces, and
// sample-format helpers shared by the engines.
package audio

import "time"

// Frame is one capture period of mono audio. Samples are normalised to
// roughly [-1, 1]. A frame is immutable once emitted: consumers must not
// modify Samples.
type Frame struct {
	// Samples holds exactly the configured frame size of mono samples.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Seq is the zero-based capture sequence number.
	Seq uint64

	// Timestamp is the capture offset relative to the start of the stream.
	Timestamp time.Duration
}

// Duration returns the wall-clock span covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
