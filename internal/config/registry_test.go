package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/kupo/internal/config"
	"github.com/MrWong99/kupo/pkg/provider/stt"
	sttmock "github.com/MrWong99/kupo/pkg/provider/stt/mock"
	"github.com/MrWong99/kupo/pkg/provider/tts"
	ttsmock "github.com/MrWong99/kupo/pkg/provider/tts/mock"
	"github.com/MrWong99/kupo/pkg/provider/vad"
	vadmock "github.com/MrWong99/kupo/pkg/provider/vad/mock"
	"github.com/MrWong99/kupo/pkg/provider/wakeword"
	wakemock "github.com/MrWong99/kupo/pkg/provider/wakeword/mock"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	var gotEntry config.ProviderEntry
	sttEngine := &sttmock.Engine{}
	r.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Engine, error) {
		gotEntry = e
		return sttEngine, nil
	})
	r.RegisterTTS("coqui", func(config.ProviderEntry) (tts.Synthesizer, error) { return &ttsmock.Synthesizer{}, nil })
	r.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	r.RegisterWakeWord("trigger", func(config.ProviderEntry) (wakeword.Engine, error) { return &wakemock.Engine{}, nil })

	entry := config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080"}
	got, err := r.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if got != sttEngine {
		t.Error("CreateSTT returned a different engine")
	}
	if gotEntry.BaseURL != entry.BaseURL {
		t.Errorf("factory entry = %+v, want %+v", gotEntry, entry)
	}
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "coqui"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if _, err := r.CreateVAD(config.ProviderEntry{Name: "energy"}); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	if _, err := r.CreateWakeWord(config.ProviderEntry{Name: "trigger"}); err != nil {
		t.Errorf("CreateWakeWord: %v", err)
	}

	names := r.Names()
	if !slices.Equal(names["stt"], []string{"whisper"}) || !slices.Equal(names["wakeword"], []string{"trigger"}) {
		t.Errorf("Names = %v", names)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	tests := []struct {
		name   string
		create func() error
	}{
		{"wakeword", func() error { _, err := r.CreateWakeWord(entry); return err }},
		{"vad", func() error { _, err := r.CreateVAD(entry); return err }},
		{"stt", func() error { _, err := r.CreateSTT(entry); return err }},
		{"tts", func() error { _, err := r.CreateTTS(entry); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.create(); !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Errorf("Create = %v, want ErrProviderNotRegistered", err)
			}
		})
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	boom := errors.New("model not found")
	r.RegisterSTT("whisper-native", func(config.ProviderEntry) (stt.Engine, error) { return nil, boom })

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "whisper-native"}); !errors.Is(err, boom) {
		t.Errorf("CreateSTT = %v, want %v", err, boom)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	first, second := &vadmock.Engine{}, &vadmock.Engine{}
	r.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return first, nil })
	r.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) { return second, nil })

	got, err := r.CreateVAD(config.ProviderEntry{Name: "energy"})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if got != second {
		t.Error("second registration should win")
	}
}
