package stt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/kupo/pkg/provider/stt"
)

func TestBatchStream_FinishTranscribesEverything(t *testing.T) {
	t.Parallel()
	var got []int16
	var gotCfg stt.Config
	fn := func(_ context.Context, pcm []int16, cfg stt.Config) (string, error) {
		got, gotCfg = pcm, cfg
		return "guess what", nil
	}
	s := stt.NewBatchStream(fn, stt.Config{SampleRate: 16000, Language: "en"}, 0)
	ctx := context.Background()
	_ = s.Feed(ctx, []int16{1, 2})
	_ = s.Feed(ctx, []int16{3})

	text, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if text != "guess what" {
		t.Errorf("text = %q", text)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Errorf("transcribed %v, want [1 2 3]", got)
	}
	if gotCfg.Language != "en" {
		t.Errorf("cfg = %+v", gotCfg)
	}

	if err := s.Feed(ctx, []int16{4}); !errors.Is(err, stt.ErrStreamClosed) {
		t.Errorf("Feed after Finish = %v, want ErrStreamClosed", err)
	}
	if _, err := s.Finish(ctx); !errors.Is(err, stt.ErrStreamClosed) {
		t.Errorf("second Finish = %v, want ErrStreamClosed", err)
	}
}

func TestBatchStream_EmptySkipsEngine(t *testing.T) {
	t.Parallel()
	called := false
	s := stt.NewBatchStream(func(context.Context, []int16, stt.Config) (string, error) {
		called = true
		return "x", nil
	}, stt.Config{}, 0)
	text, err := s.Finish(context.Background())
	if err != nil || text != "" || called {
		t.Errorf("Finish = (%q, %v), called=%v; want empty without engine call", text, err, called)
	}
}

func TestBatchStream_KeepsNewestSamples(t *testing.T) {
	t.Parallel()
	var got []int16
	s := stt.NewBatchStream(func(_ context.Context, pcm []int16, _ stt.Config) (string, error) {
		got = pcm
		return "", nil
	}, stt.Config{}, 3)
	_ = s.Feed(context.Background(), []int16{1, 2, 3, 4, 5})
	if s.Buffered() != 3 {
		t.Errorf("Buffered = %d, want 3", s.Buffered())
	}
	_, _ = s.Finish(context.Background())
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("transcribed %v, want [3 4 5]", got)
	}
}

func TestBatchStream_PropagatesEngineError(t *testing.T) {
	t.Parallel()
	boom := errors.New("model crashed")
	s := stt.NewBatchStream(func(context.Context, []int16, stt.Config) (string, error) {
		return "", boom
	}, stt.Config{}, 0)
	_ = s.Feed(context.Background(), []int16{1})
	if _, err := s.Finish(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Finish = %v, want %v", err, boom)
	}
}
