// Package app wires the kupo actors into a running application.
//
// The App struct owns the full lifecycle: New builds and registers every
// actor, Run starts them and pumps captured frames until the source ends or
// ctx is cancelled, and Shutdown drains the actors and releases devices and
// engines in order.
//
// For testing, pass mock engines in [Engines]; New never opens hardware or
// network resources itself.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kupo/internal/actor"
	"github.com/MrWong99/kupo/internal/config"
	"github.com/MrWong99/kupo/internal/dispatch"
	"github.com/MrWong99/kupo/internal/events"
	"github.com/MrWong99/kupo/internal/health"
	"github.com/MrWong99/kupo/internal/observe"
	"github.com/MrWong99/kupo/internal/onset"
	"github.com/MrWong99/kupo/internal/speaker"
	"github.com/MrWong99/kupo/internal/voice"
	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/provider/stt"
	"github.com/MrWong99/kupo/pkg/provider/tts"
	"github.com/MrWong99/kupo/pkg/provider/vad"
	"github.com/MrWong99/kupo/pkg/provider/wakeword"
)

// ErrNoCapture is returned by [New] when no capture device is supplied.
var ErrNoCapture = errors.New("app: no capture device")

// minStaleAfter is the lower bound for the capture freshness check.
const minStaleAfter = 2 * time.Second

// Engines holds one value per capability. Nil means not configured. Populated
// by main.go via the config registry. Values implementing io.Closer are
// closed by Shutdown.
type Engines struct {
	Capture  audio.CaptureDevice
	WakeWord wakeword.Engine
	VAD      vad.Engine
	STT      stt.Engine

	// TTS speaks command responses. Nil logs them instead.
	TTS tts.Engine

	// Closers are extra resources released after the engines, such as an
	// audio player shared by TTS.
	Closers []io.Closer
}

// App owns every actor and engine lifetime.
type App struct {
	cfg *config.Config
	eng Engines

	metrics  *observe.Metrics
	pub      events.Publisher
	beatSink actor.Handler

	reg      *dispatch.Registry
	pipeline *voice.Pipeline
	detector *onset.Detector

	// targets receive every captured frame.
	targets []string

	lastFrame atomic.Int64

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPublisher sends observability events to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(a *App) { a.pub = pub }
}

// WithBeatSink replaces the handler registered under the configured beat
// target. The default logs each beat at debug level.
func WithBeatSink(h actor.Handler) Option {
	return func(a *App) { a.beatSink = h }
}

// New builds the actor graph described by cfg. Nothing runs until [App.Run].
func New(cfg *config.Config, eng Engines, opts ...Option) (*App, error) {
	if eng.Capture == nil {
		return nil, ErrNoCapture
	}
	a := &App{
		cfg:      cfg,
		eng:      eng,
		metrics:  observe.DefaultMetrics(),
		pub:      events.Discard,
		beatSink: actor.HandlerFunc(logBeat),
	}
	for _, o := range opts {
		o(a)
	}
	a.reg = dispatch.New(dispatch.WithActorOptions(
		actor.WithMetrics(a.metrics),
		actor.WithFaultHook(a.onFault),
	))

	if err := a.initSpeaker(); err != nil {
		return nil, fmt.Errorf("app: init speaker: %w", err)
	}
	if err := a.initVoice(); err != nil {
		return nil, fmt.Errorf("app: init voice: %w", err)
	}
	if err := a.initOnset(); err != nil {
		return nil, fmt.Errorf("app: init onset: %w", err)
	}
	if err := a.checkCommandTargets(); err != nil {
		return nil, err
	}
	a.initClosers()
	return a, nil
}

func (a *App) initSpeaker() error {
	engine := a.eng.TTS
	if engine == nil {
		engine = logSpeech{}
	}
	s := speaker.New(engine, speaker.WithMetrics(a.metrics))
	return a.register(speaker.Name, s, false)
}

func (a *App) initVoice() error {
	if !a.cfg.Voice.IsEnabled() {
		return nil
	}
	chain, err := config.BuildCommands(a.cfg.Commands)
	if err != nil {
		return err
	}
	p, err := voice.New(a.cfg.VoiceSettings(), voice.Engines{
		WakeWord: a.eng.WakeWord,
		VAD:      a.eng.VAD,
		STT:      a.eng.STT,
	},
		voice.WithMetrics(a.metrics),
		voice.WithPublisher(a.pub),
		voice.WithMatchers(chain),
	)
	if err != nil {
		return err
	}
	a.pipeline = p
	return a.register(voice.Name, p, true)
}

func (a *App) initOnset() error {
	if !a.cfg.Onset.IsEnabled() {
		return nil
	}
	a.detector = onset.New(a.cfg.OnsetSettings(),
		onset.WithMetrics(a.metrics),
		onset.WithPublisher(a.pub),
	)
	if err := a.register(onset.Name, a.detector, true); err != nil {
		return err
	}
	if t := a.cfg.Onset.BeatTarget; t != "" {
		return a.register(t, a.beatSink, false)
	}
	return nil
}

func (a *App) register(name string, h actor.Handler, frames bool) error {
	if err := a.reg.Register(actor.New(name, h)); err != nil {
		return err
	}
	if frames {
		a.targets = append(a.targets, name)
	}
	return nil
}

// checkCommandTargets rejects commands addressed to actors that do not exist.
// An unknown target would otherwise fault the pipeline on first match.
func (a *App) checkCommandTargets() error {
	if a.pipeline == nil {
		return nil
	}
	var errs []error
	for i, c := range a.cfg.Commands {
		if c.Target != "" && a.reg.Lookup(c.Target) == nil {
			errs = append(errs, fmt.Errorf("app: commands[%d]: %w: %q", i, dispatch.ErrUnknownTarget, c.Target))
		}
	}
	return errors.Join(errs...)
}

func (a *App) initClosers() {
	add := func(name string, v any) {
		if c, ok := v.(io.Closer); ok && c != nil {
			a.closers = append(a.closers, func() error {
				if err := c.Close(); err != nil {
					return fmt.Errorf("close %s: %w", name, err)
				}
				return nil
			})
		}
	}
	add("capture", a.eng.Capture)
	add("wakeword", a.eng.WakeWord)
	add("vad", a.eng.VAD)
	add("stt", a.eng.STT)
	add("tts", a.eng.TTS)
	for i, c := range a.eng.Closers {
		add(fmt.Sprintf("resource %d", i), c)
	}
}

// Run starts every actor and pumps captured frames to the frame consumers.
// It returns nil when the capture source is exhausted or ctx is cancelled,
// and an error when the device fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.reg.StartAll(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.capture(gctx) })

	slog.Info("app running", "actors", a.reg.Names(), "frame_targets", a.targets)
	return g.Wait()
}

func (a *App) capture(ctx context.Context) error {
	dev := a.eng.Capture
	a.publishCapture("started", nil)
	for {
		f, err := dev.Read(ctx)
		switch {
		case ctx.Err() != nil:
			a.publishCapture("stopped", nil)
			return nil
		case errors.Is(err, io.EOF):
			slog.Info("capture source exhausted")
			a.publishCapture("exhausted", nil)
			return nil
		case errors.Is(err, audio.ErrOverflow):
			slog.Warn("capture overflowed; frames were lost", "seq", f.Seq)
			a.metrics.RecordProviderError(ctx, "capture", "overflow")
		case err != nil:
			a.publishCapture("failed", err)
			return fmt.Errorf("app: capture: %w", err)
		}

		a.lastFrame.Store(time.Now().UnixNano())
		a.metrics.FramesCaptured.Add(ctx, 1)
		if err := a.reg.Broadcast(f, a.targets...); err != nil {
			return fmt.Errorf("app: broadcast frame: %w", err)
		}
	}
}

func (a *App) publishCapture(status string, err error) {
	data := map[string]any{"status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	a.pub.Publish(events.Event{Kind: events.KindCaptureStatus, Time: time.Now(), Data: data})
}

func (a *App) onFault(f *actor.Fault) {
	a.pub.Publish(events.Event{
		Kind:  events.KindFault,
		Actor: f.Actor,
		Time:  time.Now(),
		Data:  map[string]any{"error": f.Err.Error()},
	})
}

// LastFrame returns when the most recent frame was captured, or the zero
// time.
func (a *App) LastFrame() time.Time {
	ns := a.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Checkers returns the readiness probes for /readyz.
func (a *App) Checkers() []health.Checker {
	frame := time.Duration(a.cfg.Audio.FrameSize) * time.Second / time.Duration(a.cfg.Audio.SampleRate)
	staleAfter := max(minStaleAfter, 20*frame)
	return []health.Checker{
		{Name: "actors", Check: a.reg.Check},
		health.Fresh("capture", staleAfter, a.LastFrame),
	}
}

// Registry exposes the actor registry.
func (a *App) Registry() *dispatch.Registry { return a.reg }

// Pipeline returns the voice pipeline, or nil when voice is disabled.
func (a *App) Pipeline() *voice.Pipeline { return a.pipeline }

// Detector returns the beat detector, or nil when onset is disabled.
func (a *App) Detector() *onset.Detector { return a.detector }

// Reload applies the hot-reloadable parts of a changed config. Only the
// command list is handled here; the log level belongs to main.
func (a *App) Reload(cfg *config.Config, d config.ConfigDiff) error {
	if !d.CommandsChanged || a.pipeline == nil {
		return nil
	}
	chain, err := config.BuildCommands(cfg.Commands)
	if err != nil {
		return fmt.Errorf("app: reload commands: %w", err)
	}
	if err := a.reg.Send(voice.Name, voice.SetMatchers{Chain: chain}); err != nil {
		return fmt.Errorf("app: reload commands: %w", err)
	}
	slog.Info("commands reloaded", "count", len(chain))
	return nil
}

// Shutdown drains every actor, then releases engines and devices in order.
// Closers still run when draining fails; the errors are joined.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if err := a.reg.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// logSpeech stands in for speech output when no TTS engine is configured.
type logSpeech struct{}

func (logSpeech) Speak(ctx context.Context, text string) error {
	observe.Logger(ctx).Info("response", "text", text)
	return nil
}

// logBeat is the default beat target. Commands may address it too.
func logBeat(_ context.Context, payload any) error {
	switch v := payload.(type) {
	case onset.Beat:
		slog.Debug("beat received", "seq", v.Seq, "flux", v.Flux, "threshold", v.Threshold)
	default:
		slog.Info("beat target message", "payload", v)
	}
	return nil
}
