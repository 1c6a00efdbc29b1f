// Package stt defines the Engine interface for speech-to-text backends.
//
// The voice pipeline opens one [Stream] per listening session, feeds it
// fixed-size blocks of 16-bit mono PCM while the user speaks, and calls
// Finish when the utterance has ended. Finish returns the final transcript
// and releases the stream. Engines that only support batch inference buffer
// the fed audio and transcribe it in Finish; see [BatchStream].
//
// Engines must be safe for concurrent use. A Stream is used by one goroutine
// at a time.
package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by Feed and Finish after Finish has been called.
var ErrStreamClosed = errors.New("stt: stream closed")

// Config describes the audio fed into a stream.
type Config struct {
	// SampleRate of the fed PCM in Hz.
	SampleRate int

	// Language is a BCP-47 tag. Empty lets the engine pick its default.
	Language string
}

// Stream receives the audio of a single utterance.
type Stream interface {
	// Feed delivers one block of PCM. The caller reuses block after Feed
	// returns.
	Feed(ctx context.Context, block []int16) error

	// Finish ends the utterance and returns the final transcript, which may
	// be empty. The stream is unusable afterwards.
	Finish(ctx context.Context) (string, error)
}

// Engine opens transcription streams.
type Engine interface {
	OpenStream(ctx context.Context, cfg Config) (Stream, error)
}
