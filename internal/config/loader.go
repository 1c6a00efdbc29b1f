package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/kupo/internal/dispatch"
	"github.com/MrWong99/kupo/internal/onset"
	"github.com/MrWong99/kupo/internal/query"
	"github.com/MrWong99/kupo/internal/speaker"
	"github.com/MrWong99/kupo/internal/voice"
)

// ValidProviderNames lists the built-in engines per kind. [Validate] warns
// about other names, which may belong to third-party factories.
var ValidProviderNames = map[string][]string{
	"wakeword": {"trigger"},
	"vad":      {"energy"},
	"stt":      {"whisper", "whisper-native", "openai"},
	"tts":      {"openai", "coqui"},
}

// reservedActors cannot be used as a beat target.
var reservedActors = []string{dispatch.Name, voice.Name, onset.Name, speaker.Name}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a defaulted cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	a := cfg.Audio
	if !a.Device.IsValid() {
		add("audio.device %q is invalid; valid values: portaudio, wav", a.Device)
	}
	if a.Device == DeviceWAV && a.WAVPath == "" {
		add("audio.wav_path is required when audio.device is wav")
	}
	if !a.Output.IsValid() {
		add("audio.output %q is invalid; valid values: portaudio, log", a.Output)
	}
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.FrameSize <= 0 {
		add("audio.frame_size must be positive, got %d", a.FrameSize)
	}

	if cfg.Voice.IsEnabled() {
		v := cfg.VoiceSettings()
		if err := v.CheckFrame(a.FrameSize); err != nil {
			errs = append(errs, fmt.Errorf("voice.block_size: %w", err))
		}
		if v.VADThreshold > 1 {
			add("voice.vad_threshold %.2f is out of range (0, 1]", v.VADThreshold)
		}
		if probe := a.SampleRate * v.VADWindowMs / 1000; probe > a.FrameSize {
			add("voice.vad_window_ms %d exceeds the frame length", v.VADWindowMs)
		}
		if cfg.Providers.STT.Name == "" {
			add("providers.stt.name is required when voice is enabled")
		}
		if cfg.Providers.TTS.Name == "" && a.Output == OutputPortAudio {
			add("providers.tts.name is required when audio.output is portaudio")
		}
	}

	if t := cfg.Onset.BeatTarget; t != "" && slices.Contains(reservedActors, t) {
		add("onset.beat_target %q collides with a built-in actor", t)
	}

	seen := make(map[string]int, len(cfg.Commands))
	for i, c := range cfg.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		tokens := query.Tokenize(c.Phrase)
		if len(tokens) == 0 {
			add("%s.phrase is required", prefix)
			continue
		}
		key := fmt.Sprint(tokens)
		if prev, ok := seen[key]; ok {
			add("%s.phrase %q duplicates commands[%d]", prefix, c.Phrase, prev)
		}
		seen[key] = i
		if c.Response == "" {
			add("%s.response is required", prefix)
		}
	}

	if len(cfg.Providers.WakeWord.Fallbacks) > 0 {
		add("providers.wakeword.fallbacks is not supported")
	}
	if len(cfg.Providers.VAD.Fallbacks) > 0 {
		add("providers.vad.fallbacks is not supported")
	}
	for _, e := range []struct {
		kind  string
		entry ProviderEntry
	}{{"stt", cfg.Providers.STT}, {"tts", cfg.Providers.TTS}} {
		kind := e.kind
		for i, fb := range e.entry.Fallbacks {
			switch {
			case fb.Name == "":
				add("providers.%s.fallbacks[%d].name is required", kind, i)
			case len(fb.Fallbacks) > 0:
				add("providers.%s.fallbacks[%d] cannot have fallbacks of its own", kind, i)
			}
			validateProviderName(kind, fb.Name)
		}
	}
	if b := cfg.Providers.Breaker; b.MaxFailures < 0 || b.ResetTimeout < 0 {
		add("providers.breaker values must not be negative")
	}

	validateProviderName("wakeword", cfg.Providers.WakeWord.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	return errors.Join(errs...)
}

// BuildCommands turns the commands section into a matcher chain in file
// order. An empty section yields [query.DefaultCommands].
func BuildCommands(cmds []CommandConfig) (query.Chain, error) {
	if len(cmds) == 0 {
		return query.DefaultCommands(), nil
	}
	chain := make(query.Chain, 0, len(cmds))
	for i, c := range cmds {
		var (
			m   *query.ResponseMatcher
			err error
		)
		if c.Phonetic {
			var p *query.PhoneticMatcher
			if p, err = query.NewPhonetic(c.Phrase); err == nil {
				m = &query.ResponseMatcher{Predicate: p, Label: p.String(), Response: c.Response}
			}
		} else {
			m, err = query.NewResponse(c.Phrase, c.Response)
		}
		if err != nil {
			return nil, fmt.Errorf("config: commands[%d]: %w", i, err)
		}
		m.Target = c.Target
		chain = append(chain, m)
	}
	return chain, nil
}

func validateProviderName(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party engine",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
