// Package mock provides test doubles for the tts package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/tts"
)

// Engine is a mock implementation of tts.Engine that records spoken text.
type Engine struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by Speak.
	SpeakErr error

	// Spoken records every text passed to Speak.
	Spoken []string
}

// Speak records text and returns SpeakErr.
func (e *Engine) Speak(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Spoken = append(e.Spoken, text)
	return e.SpeakErr
}

// Lines returns a snapshot of spoken text. Thread-safe.
func (e *Engine) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Spoken...)
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned by Synthesize.
	Clip tts.Clip

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Calls records every text passed to Synthesize.
	Calls []string
}

// Synthesize records text and returns Clip, Err.
func (s *Synthesizer) Synthesize(_ context.Context, text string) (tts.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, text)
	return s.Clip, s.Err
}

// Texts returns a snapshot of synthesized text. Thread-safe.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

var (
	_ tts.Engine      = (*Engine)(nil)
	_ tts.Synthesizer = (*Synthesizer)(nil)
)
