package audio

import (
	"context"
	"errors"
)

// ErrOverflow is returned alongside a usable frame when the device dropped
// input because the reader fell behind. Callers should log it and carry on.
var ErrOverflow = errors.New("audio: input overflowed")

// CaptureDevice delivers fixed-size frames at the device cadence.
//
// Read blocks until the next frame is available. It returns io.EOF when a
// finite source is exhausted. A frame returned together with [ErrOverflow]
// is valid.
type CaptureDevice interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Player plays 16-bit mono PCM and blocks until playback has finished.
type Player interface {
	Play(ctx context.Context, pcm []int16, sampleRate int) error
	Close() error
}
