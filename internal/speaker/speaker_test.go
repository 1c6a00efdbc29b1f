package speaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/kupo/internal/actor"
	"github.com/MrWong99/kupo/internal/dispatch"
	"github.com/MrWong99/kupo/internal/speaker"
	ttsmock "github.com/MrWong99/kupo/pkg/provider/tts/mock"
)

func TestHandleMessage(t *testing.T) {
	t.Parallel()
	boom := errors.New("no audio device")
	tests := []struct {
		name    string
		payload any
		err     error
		want    []string
		wantErr bool
	}{
		{name: "speaks text", payload: "hear you loud and clear", want: []string{"hear you loud and clear"}},
		{name: "skips empty", payload: ""},
		{name: "rejects non-string", payload: 3, wantErr: true},
		{name: "engine failure", payload: "hello", err: boom, want: []string{"hello"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &ttsmock.Engine{SpeakErr: tc.err}
			s := speaker.New(eng, speaker.WithTimeout(time.Second))
			err := s.HandleMessage(context.Background(), tc.payload)
			if (err != nil) != tc.wantErr {
				t.Fatalf("HandleMessage = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("HandleMessage = %v, want wrapping %v", err, tc.err)
			}
			got := eng.Lines()
			if len(got) != len(tc.want) {
				t.Fatalf("spoken = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("spoken[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSpeakerActorOrder(t *testing.T) {
	t.Parallel()
	eng := &ttsmock.Engine{}
	r := dispatch.New()
	if err := r.Register(actor.New(speaker.Name, speaker.New(eng))); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	lines := []string{"one", "two", "three"}
	for _, l := range lines {
		if err := r.Send(speaker.Name, l); err != nil {
			t.Fatalf("Send(%q): %v", l, err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(eng.Lines()) < len(lines) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := r.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	got := eng.Lines()
	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Errorf("spoken = %v, want %v", got, lines)
	}
}
