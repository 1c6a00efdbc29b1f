// Package tts defines the Engine interface for text-to-speech backends.
//
// An Engine speaks a line of text and returns once it has been heard. Most
// backends only synthesise audio; [Playback] pairs such a [Synthesizer] with
// an [audio.Player] to make an Engine.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/kupo/pkg/audio"
)

// ErrEmptyText is returned when asked to speak an empty string.
var ErrEmptyText = errors.New("tts: empty text")

// Clip is synthesised 16-bit mono PCM.
type Clip struct {
	PCM        []int16
	SampleRate int
}

// Engine speaks text aloud.
type Engine interface {
	// Speak blocks until the utterance has been played or ctx is done.
	Speak(ctx context.Context, text string) error
}

// Synthesizer renders text to audio without playing it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// Playback is an [Engine] that synthesises with S and plays through P.
type Playback struct {
	S Synthesizer
	P audio.Player
}

// NewPlayback pairs a synthesizer with a player.
func NewPlayback(s Synthesizer, p audio.Player) *Playback {
	return &Playback{S: s, P: p}
}

// Speak implements [Engine].
func (pb *Playback) Speak(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	clip, err := pb.S.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if len(clip.PCM) == 0 {
		return nil
	}
	if err := pb.P.Play(ctx, clip.PCM, clip.SampleRate); err != nil {
		return fmt.Errorf("tts: play: %w", err)
	}
	return nil
}

var _ Engine = (*Playback)(nil)
