// Package openai provides a speech synthesizer backed by the OpenAI audio
// speech API. Audio is requested as raw PCM (24 kHz, 16-bit, mono).
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/provider/tts"
)

// SampleRate of the PCM returned by the speech endpoint.
const SampleRate = 24000

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	client oai.Client
	model  string
	voice  string
}

type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
}

// Option is a functional option for [Synthesizer].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the speech model. Defaults to "tts-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the voice. Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI speech synthesizer.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	cfg := &config{
		model: string(oai.SpeechModelTTS1),
		voice: string(oai.AudioSpeechNewParamsVoiceAlloy),
	}
	for _, o := range opts {
		o(cfg)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Synthesizer{client: oai.NewClient(reqOpts...), model: cfg.model, voice: cfg.voice}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("openai: read speech: %w", err)
	}
	return tts.Clip{PCM: audio.BytesToInt16(pcm), SampleRate: SampleRate}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
