// Package openai provides a speech-to-text engine backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/kupo/pkg/audio/wavfile"
	"github.com/MrWong99/kupo/pkg/provider/stt"
)

// Engine implements stt.Engine by uploading each utterance as WAV.
type Engine struct {
	client     oai.Client
	model      string
	language   string
	maxSamples int
}

type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
}

// Option is a functional option for [Engine].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the default ISO-639-1 language hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI transcription engine.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	cfg := &config{model: string(oai.AudioModelWhisper1)}
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
	return &Engine{
		client:     oai.NewClient(reqOpts...),
		model:      cfg.model,
		language:   cfg.language,
		maxSamples: 60 * 16000,
	}, nil
}

// OpenStream implements stt.Engine.
func (e *Engine) OpenStream(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = e.language
	}
	return stt.NewBatchStream(e.transcribe, cfg, e.maxSamples), nil
}

func (e *Engine) transcribe(ctx context.Context, pcm []int16, cfg stt.Config) (string, error) {
	wav, err := wavfile.EncodeBytes(pcm, cfg.SampleRate)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(e.model),
	}
	if lang := primaryLanguage(cfg.Language); lang != "" {
		params.Language = oai.String(lang)
	}
	res, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

// primaryLanguage reduces a BCP-47 tag such as "en-US" to "en".
func primaryLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

var _ stt.Engine = (*Engine)(nil)
