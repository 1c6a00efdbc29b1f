package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/kupo/internal/app"
	"github.com/MrWong99/kupo/internal/config"
	"github.com/MrWong99/kupo/internal/observe"
	"github.com/MrWong99/kupo/internal/resilience"
	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/audio/portaudio"
	"github.com/MrWong99/kupo/pkg/audio/wavfile"
	"github.com/MrWong99/kupo/pkg/provider/stt"
	sttopenai "github.com/MrWong99/kupo/pkg/provider/stt/openai"
	"github.com/MrWong99/kupo/pkg/provider/stt/whisper"
	"github.com/MrWong99/kupo/pkg/provider/tts"
	"github.com/MrWong99/kupo/pkg/provider/tts/coqui"
	ttsopenai "github.com/MrWong99/kupo/pkg/provider/tts/openai"
	"github.com/MrWong99/kupo/pkg/provider/vad"
	"github.com/MrWong99/kupo/pkg/provider/vad/energy"
	"github.com/MrWong99/kupo/pkg/provider/wakeword"
	"github.com/MrWong99/kupo/pkg/provider/wakeword/trigger"
)

// openAIKeyEnv is consulted when a provider entry carries no api_key.
const openAIKeyEnv = "OPENAI_API_KEY"

// registerBuiltinProviders wires all built-in engine factories into reg.
// Each factory receives a config.ProviderEntry and constructs the engine
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Wake word ─────────────────────────────────────────────────────────────

	reg.RegisterWakeWord("trigger", func(entry config.ProviderEntry) (wakeword.Engine, error) {
		return trigger.Listen(optString(entry.Options, "socket"))
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		threshold := optFloat(entry.Options, "threshold")
		if threshold <= 0 {
			threshold = energy.DefaultThreshold
		}
		return energy.New(threshold), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Engine, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, sttopenai.WithTimeout(d))
		}
		return sttopenai.New(apiKey(entry), opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, ttsopenai.WithVoice(voice))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		return ttsopenai.New(apiKey(entry), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := optString(entry.Options, "speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildEngines opens the capture device and instantiates every engine named
// in cfg. On failure, anything already opened is closed again.
func buildEngines(cfg *config.Config, reg *config.Registry) (eng app.Engines, err error) {
	defer func() {
		if err != nil {
			closeEngines(eng)
		}
	}()

	if eng.Capture, err = openCapture(cfg.Audio); err != nil {
		return eng, err
	}

	if cfg.Voice.IsEnabled() {
		if eng.WakeWord, err = create("wakeword", cfg.Providers.WakeWord, reg.CreateWakeWord); err != nil {
			return eng, err
		}
		if eng.VAD, err = create("vad", cfg.Providers.VAD, reg.CreateVAD); err != nil {
			return eng, err
		}
		if eng.STT, err = createSTT(cfg.Providers, reg); err != nil {
			return eng, err
		}
	}

	if cfg.Audio.Output == config.OutputPortAudio && cfg.Providers.TTS.Name != "" {
		var synth tts.Synthesizer
		if synth, err = createTTS(cfg.Providers, reg); err != nil {
			return eng, err
		}
		var player *portaudio.Player
		if player, err = portaudio.NewPlayer(0); err != nil {
			return eng, fmt.Errorf("open audio output: %w", err)
		}
		eng.TTS = tts.NewPlayback(synth, player)
		eng.Closers = append(eng.Closers, player)
	}
	return eng, nil
}

func openCapture(a config.AudioConfig) (audio.CaptureDevice, error) {
	switch a.Device {
	case config.DeviceWAV:
		dev, err := wavfile.Open(a.WAVPath, wavfile.Options{
			SampleRate: a.SampleRate,
			FrameSize:  a.FrameSize,
			Loop:       a.Loop,
			Realtime:   a.Realtime,
		})
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		slog.Info("capture opened", "device", "wav", "path", a.WAVPath, "loop", a.Loop)
		return dev, nil
	default:
		dev, err := portaudio.OpenCapture(a.SampleRate, a.FrameSize)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		slog.Info("capture opened", "device", "portaudio", "sample_rate", a.SampleRate, "frame_size", a.FrameSize)
		return dev, nil
	}
}

// create instantiates one engine and logs the result.
func create[T any](kind string, entry config.ProviderEntry, fn func(config.ProviderEntry) (T, error)) (T, error) {
	e, err := fn(entry)
	if err != nil {
		var zero T
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return zero, fmt.Errorf("%s provider %q is not built in: %w", kind, entry.Name, err)
		}
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return e, nil
}

// createSTT builds the transcription engine. With fallbacks configured it
// is a failover group; the members are closed together with the group.
func createSTT(p config.ProvidersConfig, reg *config.Registry) (stt.Engine, error) {
	primary, err := create("stt", p.STT, reg.CreateSTT)
	if err != nil || len(p.STT.Fallbacks) == 0 {
		return primary, err
	}
	g := resilience.NewGroup(p.STT.Name, primary, breakerConfig(p.Breaker), resilience.WithMetrics(observe.DefaultMetrics()))
	f := resilience.NewSTT(g)
	for i, entry := range p.STT.Fallbacks {
		e, err := create("stt fallback", entry, reg.CreateSTT)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		g.Add(fmt.Sprintf("%s#%d", entry.Name, i+1), e)
	}
	return f, nil
}

// createTTS builds the synthesizer, wrapped in a failover group when
// fallbacks are configured.
func createTTS(p config.ProvidersConfig, reg *config.Registry) (tts.Synthesizer, error) {
	primary, err := create("tts", p.TTS, reg.CreateTTS)
	if err != nil || len(p.TTS.Fallbacks) == 0 {
		return primary, err
	}
	g := resilience.NewGroup(p.TTS.Name, primary, breakerConfig(p.Breaker), resilience.WithMetrics(observe.DefaultMetrics()))
	for i, entry := range p.TTS.Fallbacks {
		s, err := create("tts fallback", entry, reg.CreateTTS)
		if err != nil {
			return nil, err
		}
		g.Add(fmt.Sprintf("%s#%d", entry.Name, i+1), s)
	}
	return resilience.NewTTS(g), nil
}

func breakerConfig(b config.BreakerConfig) resilience.BreakerConfig {
	return resilience.BreakerConfig{MaxFailures: b.MaxFailures, ResetTimeout: b.ResetTimeout}
}

// closeEngines releases everything buildEngines opened. Used when startup
// fails before the application takes ownership.
func closeEngines(eng app.Engines) {
	for _, v := range []any{eng.Capture, eng.WakeWord, eng.VAD, eng.STT, eng.TTS} {
		if c, ok := v.(io.Closer); ok {
			_ = c.Close()
		}
	}
	for _, c := range eng.Closers {
		_ = c.Close()
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// apiKey returns entry.APIKey, falling back to OPENAI_API_KEY.
func apiKey(entry config.ProviderEntry) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return os.Getenv(openAIKeyEnv)
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a numeric option. YAML decodes integers as int.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// optDuration parses a duration option such as "30s". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
