package tts_test

import (
	"context"
	"errors"
	"testing"

	audiomock "github.com/MrWong99/kupo/pkg/audio/mock"
	"github.com/MrWong99/kupo/pkg/provider/tts"
	"github.com/MrWong99/kupo/pkg/provider/tts/mock"
)

func TestPlayback_SynthesizesAndPlays(t *testing.T) {
	t.Parallel()
	s := &mock.Synthesizer{Clip: tts.Clip{PCM: []int16{1, 2, 3}, SampleRate: 24000}}
	p := &audiomock.Player{}
	pb := tts.NewPlayback(s, p)

	if err := pb.Speak(context.Background(), "chicken butt"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := s.Texts(); len(got) != 1 || got[0] != "chicken butt" {
		t.Errorf("synthesized %v", got)
	}
	calls := p.Calls()
	if len(calls) != 1 || calls[0].SampleRate != 24000 || len(calls[0].PCM) != 3 {
		t.Errorf("play calls = %+v", calls)
	}
}

func TestPlayback_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("no voice")

	pb := tts.NewPlayback(&mock.Synthesizer{}, &audiomock.Player{})
	if err := pb.Speak(context.Background(), ""); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text = %v, want ErrEmptyText", err)
	}

	pb = tts.NewPlayback(&mock.Synthesizer{Err: boom}, &audiomock.Player{})
	if err := pb.Speak(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Errorf("synth failure = %v, want %v", err, boom)
	}

	pb = tts.NewPlayback(&mock.Synthesizer{Clip: tts.Clip{PCM: []int16{1}, SampleRate: 16000}}, &audiomock.Player{PlayErr: boom})
	if err := pb.Speak(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Errorf("play failure = %v, want %v", err, boom)
	}
}

func TestPlayback_SilentClipSkipsPlayer(t *testing.T) {
	t.Parallel()
	p := &audiomock.Player{}
	pb := tts.NewPlayback(&mock.Synthesizer{}, p)
	if err := pb.Speak(context.Background(), "hi"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(p.Calls()) != 0 {
		t.Error("empty clip was played")
	}
}
