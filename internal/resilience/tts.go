package resilience

import (
	"context"

	"github.com/MrWong99/kupo/pkg/provider/tts"
)

// TTS is a [tts.Synthesizer] that fails over between synthesis backends.
type TTS struct {
	group *Group[tts.Synthesizer]
}

// NewTTS wraps group.
func NewTTS(group *Group[tts.Synthesizer]) *TTS {
	return &TTS{group: group}
}

// Synthesize renders text with the first healthy backend.
func (f *TTS) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	return Do(ctx, f.group, func(s tts.Synthesizer) (tts.Clip, error) {
		return s.Synthesize(ctx, text)
	})
}

var _ tts.Synthesizer = (*TTS)(nil)
