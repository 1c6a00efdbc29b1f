// Package wakeword defines the Engine interface for keyword spotting
// backends.
//
// The voice pipeline feeds every captured frame, converted to 16-bit PCM, to
// the engine. Process returns the index of the detected keyword, or
// [NoDetection].
package wakeword

// NoDetection is returned by Process when no keyword was heard.
const NoDetection = -1

// Engine spots keywords in a stream of frames.
type Engine interface {
	Process(pcm []int16) (int, error)
}
