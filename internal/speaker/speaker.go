// Package speaker implements the speech-output actor. It receives text
// payloads and speaks them one at a time through a [tts.Engine].
package speaker

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/kupo/internal/actor"
	"github.com/MrWong99/kupo/internal/observe"
	"github.com/MrWong99/kupo/pkg/provider/tts"
)

// Name is the registration name other actors address responses to.
const Name = "tts"

// Option configures a [Speaker].
type Option func(*Speaker)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// WithTimeout bounds each utterance. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) { s.timeout = d }
}

// Speaker is an [actor.Handler] for string payloads.
type Speaker struct {
	engine  tts.Engine
	metrics *observe.Metrics
	timeout time.Duration
}

// New returns a speaker backed by engine.
func New(engine tts.Engine, opts ...Option) *Speaker {
	s := &Speaker{engine: engine}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// HandleMessage speaks payload and returns once playback finished. Empty
// text is skipped.
func (s *Speaker) HandleMessage(ctx context.Context, payload any) error {
	text, ok := payload.(string)
	if !ok {
		return fmt.Errorf("speaker: unexpected payload %T", payload)
	}
	if text == "" {
		return nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := observe.StartActorSpan(ctx, Name, "speak")
	defer span.End()

	start := time.Now()
	err := s.engine.Speak(ctx, text)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "speak")
		span.RecordError(err)
		return fmt.Errorf("speaker: speak: %w", err)
	}
	observe.Logger(ctx).Info("spoke", "text", text, "duration", time.Since(start))
	return nil
}

var _ actor.Handler = (*Speaker)(nil)
