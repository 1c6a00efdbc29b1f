package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/stt"
	"github.com/MrWong99/kupo/pkg/provider/tts"
	"github.com/MrWong99/kupo/pkg/provider/vad"
	"github.com/MrWong99/kupo/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds an engine from its configuration block.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] map[string]Factory[T]

func (f factories[T]) create(mu *sync.RWMutex, kind string, entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := f[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func (f factories[T]) names(mu *sync.RWMutex) []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(f))
	for name := range f {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry maps provider names to engine constructors for each capability.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	wakeword factories[wakeword.Engine]
	vad      factories[vad.Engine]
	stt      factories[stt.Engine]
	tts      factories[tts.Synthesizer]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		wakeword: make(factories[wakeword.Engine]),
		vad:      make(factories[vad.Engine]),
		stt:      make(factories[stt.Engine]),
		tts:      make(factories[tts.Synthesizer]),
	}
}

// RegisterWakeWord registers a wake word engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterWakeWord(name string, f Factory[wakeword.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wakeword[name] = f
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = f
}

// RegisterSTT registers a speech-to-text engine factory under name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Engine]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = f
}

// RegisterTTS registers a speech synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Synthesizer]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateWakeWord instantiates the wake word engine registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateWakeWord(entry ProviderEntry) (wakeword.Engine, error) {
	return r.wakeword.create(&r.mu, "wakeword", entry)
}

// CreateVAD instantiates the VAD engine registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return r.vad.create(&r.mu, "vad", entry)
}

// CreateSTT instantiates the speech-to-text engine registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Engine, error) {
	return r.stt.create(&r.mu, "stt", entry)
}

// CreateTTS instantiates the synthesizer registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	return r.tts.create(&r.mu, "tts", entry)
}

// Names lists the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	return map[string][]string{
		"wakeword": r.wakeword.names(&r.mu),
		"vad":      r.vad.names(&r.mu),
		"stt":      r.stt.names(&r.mu),
		"tts":      r.tts.names(&r.mu),
	}
}
