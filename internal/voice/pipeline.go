// Package voice implements the assistant's listening pipeline.
//
// Every capture frame runs through the same fixed sequence: wake-word check,
// command timeout, voice-activity vote, silence debounce, then exactly one of
// open stream / close stream / feed audio. A finished transcript is tokenized
// and offered to the configured [query.Chain].
//
//	IDLE ──wake word──▶ ACTIVATING ──stream opened──▶ LISTENING
//	  ▲                                                  │
//	  └──── transcript dispatched ◀── DEACTIVATING ◀─────┘ timeout / silence
//
// A wake word heard while LISTENING restarts the session.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/kupo/internal/actor"
	"github.com/MrWong99/kupo/internal/events"
	"github.com/MrWong99/kupo/internal/observe"
	"github.com/MrWong99/kupo/internal/query"
	"github.com/MrWong99/kupo/pkg/audio"
	"github.com/MrWong99/kupo/pkg/provider/stt"
	"github.com/MrWong99/kupo/pkg/provider/vad"
	"github.com/MrWong99/kupo/pkg/provider/wakeword"
)

// Name is the conventional registration name of the pipeline actor.
const Name = "assistant"

// Session end reasons, used in metrics and events.
const (
	ReasonTimeout   = "timeout"
	ReasonVAD       = "vad"
	ReasonRetrigger = "retrigger"
)

// ErrMissingEngine is returned by [New] when an engine is nil.
var ErrMissingEngine = errors.New("voice: missing engine")

// State is the pipeline's position in the listening cycle.
type State int32

const (
	StateIdle State = iota
	StateActivating
	StateListening
	StateDeactivating
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActivating:
		return "ACTIVATING"
	case StateListening:
		return "LISTENING"
	case StateDeactivating:
		return "DEACTIVATING"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Engines groups the external capabilities the pipeline drives.
type Engines struct {
	WakeWord wakeword.Engine
	VAD      vad.Engine
	STT      stt.Engine
}

// SetMatchers replaces the command chain. Send it through the pipeline's
// mailbox so the swap is ordered with frames.
type SetMatchers struct {
	Chain query.Chain
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPublisher sets the event sink. Defaults to [events.Discard].
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.events = pub }
}

// WithMatchers sets the command chain. Defaults to [query.DefaultCommands].
func WithMatchers(c query.Chain) Option {
	return func(p *Pipeline) { p.matchers = c }
}

// WithIDGenerator replaces the session ID source.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// session is the state of one listening cycle.
type session struct {
	id          string
	activatedAt time.Time
	window      *VADWindow
	quietSince  time.Time
	quiet       bool
	stream      stt.Stream
	activate    bool
	deactivate  bool
	reason      string
}

// Pipeline is an [actor.Handler] consuming [audio.Frame] and [SetMatchers]
// payloads. Only State and SessionID are safe to call from other goroutines.
type Pipeline struct {
	cfg      Config
	eng      Engines
	matchers query.Chain
	mgr      actor.Manager
	now      func() time.Time
	newID    func() string
	metrics  *observe.Metrics
	events   events.Publisher
	log      *slog.Logger

	sess *session
	pcm  []int16

	state     atomic.Int32
	sessionID atomic.Pointer[string]
}

// New validates cfg and returns an idle pipeline.
func New(cfg Config, eng Engines, opts ...Option) (*Pipeline, error) {
	var errs []error
	if eng.WakeWord == nil {
		errs = append(errs, fmt.Errorf("%w: wake word", ErrMissingEngine))
	}
	if eng.VAD == nil {
		errs = append(errs, fmt.Errorf("%w: vad", ErrMissingEngine))
	}
	if eng.STT == nil {
		errs = append(errs, fmt.Errorf("%w: stt", ErrMissingEngine))
	}
	cfg = cfg.WithDefaults()
	if cfg.FrameSize > 0 {
		if err := cfg.CheckFrame(cfg.FrameSize); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		eng:      eng,
		matchers: query.DefaultCommands(),
		now:      time.Now,
		newID:    uuid.NewString,
		events:   events.Discard,
		log:      slog.Default().With("actor", Name),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// AttachManager implements [actor.Attacher].
func (p *Pipeline) AttachManager(m actor.Manager) { p.mgr = m }

// HandleMessage implements [actor.Handler].
func (p *Pipeline) HandleMessage(ctx context.Context, payload any) error {
	switch m := payload.(type) {
	case audio.Frame:
		return p.Process(ctx, m)
	case SetMatchers:
		p.matchers = m.Chain
		p.log.Info("command set replaced", "commands", len(m.Chain))
		return nil
	default:
		return fmt.Errorf("voice: unexpected payload %T", payload)
	}
}

// Process advances the state machine by one frame.
func (p *Pipeline) Process(ctx context.Context, f audio.Frame) error {
	if err := p.cfg.CheckFrame(len(f.Samples)); err != nil {
		return err
	}
	p.pcm = audio.FloatToInt16(p.pcm[:0], f.Samples)
	now := p.now()

	idx, err := p.eng.WakeWord.Process(p.pcm)
	if err != nil {
		p.metrics.RecordProviderError(ctx, "wakeword", "process")
		return fmt.Errorf("voice: wake word: %w", err)
	}
	if idx != wakeword.NoDetection {
		p.trigger(ctx, now, idx)
	}

	s := p.sess
	if s == nil {
		return nil
	}

	if now.Sub(s.activatedAt) >= p.cfg.CommandTimeout {
		s.deactivate, s.reason = true, ReasonTimeout
		s.quiet = false
	}

	speech, err := p.detectSpeech()
	if err != nil {
		p.metrics.RecordProviderError(ctx, "vad", "is_speech")
		return fmt.Errorf("voice: vad: %w", err)
	}
	s.window.Push(speech)
	active := s.window.Active(p.cfg.VADThreshold)

	switch {
	case !s.quiet && !active:
		s.quiet, s.quietSince = true, now
	case s.quiet && active:
		s.quiet = false
	case s.quiet && !active && now.Sub(s.quietSince) >= p.cfg.VADTimeout:
		s.quiet = false
		s.deactivate, s.reason = true, ReasonVAD
	}

	switch {
	case s.activate:
		return p.open(ctx, s)
	case s.deactivate:
		p.setState(StateDeactivating)
		return p.close(ctx, s)
	default:
		return p.feed(ctx, s)
	}
}

// trigger starts a fresh session, discarding any session in progress.
func (p *Pipeline) trigger(ctx context.Context, now time.Time, keyword int) {
	if old := p.sess; old != nil && old.stream != nil {
		if _, err := old.stream.Finish(ctx); err != nil {
			p.log.Warn("discarding interrupted session", "session", old.id, "err", err)
		}
		p.metrics.VoiceSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", ReasonRetrigger)))
		p.events.Publish(events.Event{
			Kind:    events.KindSessionClose,
			Actor:   Name,
			Session: old.id,
			Data:    map[string]any{"reason": ReasonRetrigger},
		})
	}

	s := &session{
		id:          p.newID(),
		activatedAt: now,
		window:      NewVADWindow(p.cfg.VADWindow),
		activate:    true,
	}
	p.sess = s
	p.sessionID.Store(&s.id)
	p.setState(StateActivating)

	p.log.Info("keyword detected", "session", s.id, "keyword", keyword)
	p.metrics.KeywordDetections.Add(ctx, 1)
	p.events.Publish(events.Event{
		Kind:    events.KindKeyword,
		Actor:   Name,
		Session: s.id,
		Time:    now,
		Data:    map[string]any{"keyword": keyword},
	})
}

// detectSpeech probes the first and last VADWindowMs of the current frame.
func (p *Pipeline) detectSpeech() (bool, error) {
	n := min(p.cfg.probeSamples(), len(p.pcm))
	head, err := p.eng.VAD.IsSpeech(audio.Int16ToBytes(p.pcm[:n]), p.cfg.SampleRate)
	if err != nil {
		return false, err
	}
	tail, err := p.eng.VAD.IsSpeech(audio.Int16ToBytes(p.pcm[len(p.pcm)-n:]), p.cfg.SampleRate)
	if err != nil {
		return false, err
	}
	return head || tail, nil
}

func (p *Pipeline) open(ctx context.Context, s *session) error {
	stream, err := p.eng.STT.OpenStream(ctx, stt.Config{SampleRate: p.cfg.SampleRate, Language: p.cfg.Language})
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "open")
		p.sess = nil
		p.setState(StateIdle)
		return fmt.Errorf("voice: open transcription stream: %w", err)
	}
	s.stream = stream
	s.activate = false
	p.setState(StateListening)
	p.log.Debug("listening", "session", s.id)
	p.events.Publish(events.Event{Kind: events.KindSessionOpen, Actor: Name, Session: s.id})
	return nil
}

func (p *Pipeline) feed(ctx context.Context, s *session) error {
	bs := p.cfg.BlockSize
	for i := 0; i < len(p.pcm); i += bs {
		if err := s.stream.Feed(ctx, p.pcm[i:i+bs]); err != nil {
			p.metrics.RecordProviderError(ctx, "stt", "feed")
			return fmt.Errorf("voice: feed transcription stream: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) close(ctx context.Context, s *session) error {
	ctx, span := observe.StartActorSpan(ctx, Name, "finalize")
	defer span.End()

	p.sess = nil
	defer p.setState(StateIdle)

	start := time.Now()
	text, err := s.stream.Finish(ctx)
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "finish")
		span.RecordError(err)
		return fmt.Errorf("voice: finish transcription: %w", err)
	}

	p.metrics.VoiceSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", s.reason)))
	p.events.Publish(events.Event{
		Kind:    events.KindSessionClose,
		Actor:   Name,
		Session: s.id,
		Data:    map[string]any{"reason": s.reason},
	})
	p.log.Info("transcription", "session", s.id, "reason", s.reason, "text", text)
	p.events.Publish(events.Event{
		Kind:    events.KindTranscript,
		Actor:   Name,
		Session: s.id,
		Data:    map[string]any{"text": text},
	})
	return p.dispatch(ctx, s.id, text)
}

// dispatch offers the transcript to the command chain. No match is a valid
// outcome.
func (p *Pipeline) dispatch(ctx context.Context, id, text string) error {
	tokens := query.Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	m, err := p.matchers.Dispatch(ctx, tokens, p.mgr)
	if m == nil {
		return nil
	}
	p.metrics.CommandMatches.Add(ctx, 1, metric.WithAttributes(attribute.String("command", m.Name())))
	p.events.Publish(events.Event{
		Kind:    events.KindCommand,
		Actor:   Name,
		Session: id,
		Data:    map[string]any{"command": m.Name()},
	})
	if err != nil {
		return fmt.Errorf("voice: command %q: %w", m.Name(), err)
	}
	p.log.Info("command matched", "session", id, "command", m.Name())
	return nil
}

func (p *Pipeline) setState(s State) { p.state.Store(int32(s)) }

// State returns the pipeline's state. Safe for concurrent use.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// SessionID returns the ID of the most recent session, or "".
func (p *Pipeline) SessionID() string {
	if id := p.sessionID.Load(); id != nil {
		return *id
	}
	return ""
}

var (
	_ actor.Handler  = (*Pipeline)(nil)
	_ actor.Attacher = (*Pipeline)(nil)
)
