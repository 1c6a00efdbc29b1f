// Package vad defines the Engine interface for voice activity detection
// backends.
//
// The voice pipeline asks for a binary speech decision on short windows
// (about 30 ms) of 16-bit little-endian mono PCM. Engines are called
// synchronously from the pipeline's own goroutine and should return quickly.
package vad

import "errors"

// ErrUnsupportedWindow is returned for windows the engine cannot classify,
// e.g. an empty or odd-length buffer.
var ErrUnsupportedWindow = errors.New("vad: unsupported window")

// Engine classifies a PCM window as speech or silence.
type Engine interface {
	IsSpeech(pcm []byte, sampleRate int) (bool, error)
}
