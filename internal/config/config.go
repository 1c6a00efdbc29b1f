// Package config defines the kupo configuration schema, its YAML loader and
// validator, the provider factory registry, and a polling file watcher for
// hot-reloadable settings.
package config

import (
	"time"

	"github.com/MrWong99/kupo/internal/onset"
	"github.com/MrWong99/kupo/internal/voice"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Device selects the capture source.
type Device string

const (
	// DevicePortAudio captures from the default input device.
	DevicePortAudio Device = "portaudio"

	// DeviceWAV replays a WAV file as if it were a microphone.
	DeviceWAV Device = "wav"
)

// IsValid reports whether d is a recognised capture device.
func (d Device) IsValid() bool {
	return d == DevicePortAudio || d == DeviceWAV
}

// Output selects where spoken responses go.
type Output string

const (
	// OutputPortAudio plays synthesized speech on the default output device.
	OutputPortAudio Output = "portaudio"

	// OutputLog logs responses instead of speaking them.
	OutputLog Output = "log"
)

// IsValid reports whether o is a recognised output.
func (o Output) IsValid() bool {
	return o == OutputPortAudio || o == OutputLog
}

// Config is the root configuration, usually loaded with [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Voice     VoiceConfig     `yaml:"voice"`
	Onset     OnsetConfig     `yaml:"onset"`
	Providers ProvidersConfig `yaml:"providers"`
	Commands  []CommandConfig `yaml:"commands"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /metrics, /healthz, /readyz and /events. Empty
	// disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds the drain of all actors on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AudioConfig describes the capture stream and speech output.
type AudioConfig struct {
	Device Device `yaml:"device"`

	// SampleRate of captured frames in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`

	// WAVPath is the file replayed when Device is "wav".
	WAVPath string `yaml:"wav_path"`

	// Loop restarts the WAV file at its end instead of stopping.
	Loop bool `yaml:"loop"`

	// Realtime paces WAV frames at the capture cadence.
	Realtime bool `yaml:"realtime"`

	Output Output `yaml:"output"`
}

// VoiceConfig tunes the assistant pipeline. See [voice.Config].
type VoiceConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	CommandTimeout time.Duration `yaml:"command_timeout"`
	VADTimeout     time.Duration `yaml:"vad_timeout"`
	VADWindow      int           `yaml:"vad_window"`
	VADThreshold   float64       `yaml:"vad_threshold"`
	VADWindowMs    int           `yaml:"vad_window_ms"`
	BlockSize      int           `yaml:"block_size"`
	Language       string        `yaml:"language"`
}

// IsEnabled reports whether the assistant actor should run.
func (v VoiceConfig) IsEnabled() bool { return v.Enabled == nil || *v.Enabled }

// OnsetConfig tunes the beat detector.
type OnsetConfig struct {
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`

	BufferLen  int           `yaml:"buffer_len"`
	Refractory time.Duration `yaml:"refractory"`

	// BeatTarget names an actor that receives every beat. A sink actor of
	// that name is registered automatically.
	BeatTarget string `yaml:"beat_target"`
}

// IsEnabled reports whether the beat detector actor should run.
func (o OnsetConfig) IsEnabled() bool { return o.Enabled == nil || *o.Enabled }

// ProvidersConfig selects the engine behind each capability.
type ProvidersConfig struct {
	WakeWord ProviderEntry `yaml:"wakeword"`
	VAD      ProviderEntry `yaml:"vad"`
	STT      ProviderEntry `yaml:"stt"`
	TTS      ProviderEntry `yaml:"tts"`

	// Breaker tunes the circuit breakers placed in front of STT and TTS
	// engines that have fallbacks.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes provider failover. Zero values use the resilience
// package defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the configuration block shared by every engine kind. Name
// selects the factory in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds engine-specific values.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this engine fails. Only STT and TTS
	// support them.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// CommandConfig is one spoken command and its response.
type CommandConfig struct {
	// Phrase must occur in the transcript as a contiguous run of words.
	Phrase string `yaml:"phrase"`

	// Response is sent to Target when the phrase matches.
	Response string `yaml:"response"`

	// Target defaults to "tts".
	Target string `yaml:"target"`

	// Phonetic tolerates misheard words.
	Phonetic bool `yaml:"phonetic"`
}

// Defaults used by [ApplyDefaults].
const (
	DefaultShutdownTimeout = 15 * time.Second
	DefaultSampleRate      = voice.DefaultSampleRate
	DefaultFrameSize       = 1024
	DefaultWakeWord        = "trigger"
	DefaultVAD             = "energy"
)

// ApplyDefaults fills zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Audio.Device == "" {
		cfg.Audio.Device = DevicePortAudio
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FrameSize <= 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Audio.Output == "" {
		cfg.Audio.Output = OutputPortAudio
	}

	v := cfg.VoiceSettings()
	cfg.Voice.CommandTimeout = v.CommandTimeout
	cfg.Voice.VADTimeout = v.VADTimeout
	cfg.Voice.VADWindow = v.VADWindow
	cfg.Voice.VADThreshold = v.VADThreshold
	cfg.Voice.VADWindowMs = v.VADWindowMs
	cfg.Voice.BlockSize = v.BlockSize

	if cfg.Onset.BufferLen <= 0 {
		cfg.Onset.BufferLen = onset.DefaultBufferLen
	}
	if cfg.Onset.Refractory <= 0 {
		cfg.Onset.Refractory = onset.DefaultRefractory
	}

	if cfg.Providers.WakeWord.Name == "" {
		cfg.Providers.WakeWord.Name = DefaultWakeWord
	}
	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = DefaultVAD
	}
}

// VoiceSettings converts the voice section to a [voice.Config] with defaults
// applied.
func (c *Config) VoiceSettings() voice.Config {
	return voice.Config{
		SampleRate:     c.Audio.SampleRate,
		FrameSize:      c.Audio.FrameSize,
		BlockSize:      c.Voice.BlockSize,
		CommandTimeout: c.Voice.CommandTimeout,
		VADTimeout:     c.Voice.VADTimeout,
		VADWindow:      c.Voice.VADWindow,
		VADThreshold:   c.Voice.VADThreshold,
		VADWindowMs:    c.Voice.VADWindowMs,
		Language:       c.Voice.Language,
	}.WithDefaults()
}

// OnsetSettings converts the onset section to an [onset.Config].
func (c *Config) OnsetSettings() onset.Config {
	return onset.Config{
		BufferLen:  c.Onset.BufferLen,
		Refractory: c.Onset.Refractory,
		BeatTarget: c.Onset.BeatTarget,
	}
}
