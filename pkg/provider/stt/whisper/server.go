// Package whisper provides speech-to-text engines backed by whisper.cpp.
//
// [Server] talks to a running whisper-server binary (POST /inference) and
// [Native] links the model in-process through the CGO bindings. whisper.cpp is
// a batch engine, so both buffer the utterance and transcribe it on Finish.
//
// Usage:
//
//	e, err := whisper.NewServer("http://localhost:8080", whisper.WithLanguage("en"))
//	s, err := e.OpenStream(ctx, stt.Config{SampleRate: 16000})
//	s.Feed(ctx, block)
//	text, err := s.Finish(ctx)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/kupo/pkg/audio/wavfile"
	"github.com/MrWong99/kupo/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultMaxSamples = 30 * 16000
)

// Option configures a [Server] engine.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the server (e.g.
// "base.en"). Empty uses whatever model the server was started with.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithLanguage sets the default language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Server) { s.language = lang }
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// WithMaxSamples caps the audio kept per utterance.
func WithMaxSamples(n int) Option {
	return func(s *Server) { s.maxSamples = n }
}

// Server implements stt.Engine against a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	language   string
	maxSamples int
	httpClient *http.Client
}

// NewServer creates an engine for the whisper-server at serverURL.
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  serverURL,
		language:   defaultLanguage,
		maxSamples: defaultMaxSamples,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// OpenStream implements stt.Engine.
func (s *Server) OpenStream(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: open stream: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = s.language
	}
	return stt.NewBatchStream(s.infer, cfg, s.maxSamples), nil
}

// infer uploads the utterance as WAV to /inference and returns the text.
func (s *Server) infer(ctx context.Context, pcm []int16, cfg stt.Config) (string, error) {
	wav, err := wavfile.EncodeBytes(pcm, cfg.SampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write audio: %w", err)
	}
	fields := map[string]string{"response_format": "json", "language": cfg.Language}
	if s.model != "" {
		fields["model"] = s.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

var _ stt.Engine = (*Server)(nil)
