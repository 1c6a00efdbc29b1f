// This file contains the Native engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/provider/stt"
)

// modelSampleRate is the only rate whisper models accept.
const modelSampleRate = 16000

// Native implements stt.Engine on an in-process whisper.cpp model. The model
// is loaded once and shared; each utterance gets its own context.
type Native struct {
	model      whisperlib.Model
	language   string
	maxSamples int
}

// NativeOption configures a [Native] engine.
type NativeOption func(*Native)

// WithNativeLanguage sets the default language (e.g. "en", "de"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// WithNativeMaxSamples caps the audio kept per utterance. Defaults to 30 s at 16 kHz.
func WithNativeMaxSamples(n int) NativeOption {
	return func(e *Native) { e.maxSamples = n }
}

// NewNative loads the model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage, maxSamples: defaultMaxSamples}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// OpenStream implements stt.Engine.
func (n *Native) OpenStream(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: open stream: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = n.language
	}
	return stt.NewBatchStream(n.transcribe, cfg, n.maxSamples), nil
}

func (n *Native) transcribe(_ context.Context, pcm []int16, cfg stt.Config) (string, error) {
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(cfg.Language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", cfg.Language, "err", err)
	}

	samples := audio.Int16ToFloat(pcm)
	if cfg.SampleRate > 0 && cfg.SampleRate != modelSampleRate {
		samples = audio.Resample(samples, cfg.SampleRate, modelSampleRate)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

var _ stt.Engine = (*Native)(nil)
