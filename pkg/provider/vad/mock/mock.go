// Package mock provides test doubles for the vad package interfaces.
//
// Example:
//
//	eng := &mock.Engine{Script: []bool{true, false}} // then Default forever
//	speech, _ := eng.IsSpeech(window, 16000)
package mock

import (
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/vad"
)

// IsSpeechCall records a single invocation of Engine.IsSpeech.
type IsSpeechCall struct {
	Bytes      int
	SampleRate int
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Script supplies results for successive calls. Once exhausted, Default
	// is returned.
	Script []bool

	// Default is returned when Script is exhausted.
	Default bool

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every call to IsSpeech.
	Calls []IsSpeechCall
}

// IsSpeech records the call and returns the next scripted result.
func (e *Engine) IsSpeech(pcm []byte, sampleRate int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.Calls)
	e.Calls = append(e.Calls, IsSpeechCall{Bytes: len(pcm), SampleRate: sampleRate})
	if e.Err != nil {
		return false, e.Err
	}
	if i < len(e.Script) {
		return e.Script[i], nil
	}
	return e.Default, nil
}

// SetDefault changes Default. Thread-safe.
func (e *Engine) SetDefault(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Default = v
}

// CallCount returns the number of IsSpeech calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

var _ vad.Engine = (*Engine)(nil)
