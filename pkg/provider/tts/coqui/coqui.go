// Package coqui provides a speech synthesizer that talks to a locally running
// Coqui TTS server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), GET /api/tts with query parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server, POST /tts_to_audio/ with a
//     JSON body.
//
// Both return a WAV file, which is decoded to mono PCM at the model's rate.
//
// Typical usage:
//
//	s, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	engine := tts.NewPlayback(s, player)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/audio/wavfile"
	"github.com/MrWong99/kupo/pkg/provider/tts"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects which Coqui server API the synthesizer targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// IsValid reports whether m is a known mode.
func (m APIMode) IsValid() bool {
	return m == APIModeXTTS || m == APIModeStandard
}

// Option is a functional option for configuring a [Synthesizer].
type Option func(*Synthesizer)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) { s.apiMode = mode }
}

// WithSpeaker selects a speaker ID (standard) or reference WAV (XTTS).
func WithSpeaker(speaker string) Option {
	return func(s *Synthesizer) { s.speaker = speaker }
}

// Synthesizer implements tts.Synthesizer against a Coqui server.
type Synthesizer struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a synthesizer for the server at serverURL.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	if !s.apiMode.IsValid() {
		return nil, fmt.Errorf("coqui: unknown api mode %q", s.apiMode)
	}
	return s, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	var (
		req *http.Request
		err error
	)
	if s.apiMode == APIModeXTTS {
		body, _ := json.Marshal(xttsRequest{Text: text, SpeakerWav: s.speaker, Language: s.language})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		params := url.Values{}
		params.Set("text", text)
		if s.speaker != "" {
			params.Set("speaker_id", s.speaker)
		}
		if s.language != "" {
			params.Set("language_id", s.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tts.Clip{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	samples, rate, err := wavfile.DecodeNative(bytes.NewReader(data))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: %w", err)
	}
	return tts.Clip{PCM: audio.FloatToInt16(nil, samples), SampleRate: rate}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
