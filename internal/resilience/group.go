package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/kupo/internal/observe"
)

// ErrAllFailed is returned when every engine in a [Group] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all engines failed")

type member[T any] struct {
	value   T
	breaker *Breaker
}

// Group is an ordered list of interchangeable engines. The first entry is
// the primary.
type Group[T any] struct {
	cfg     BreakerConfig
	now     func() time.Time
	metrics *observe.Metrics
	members []member[T]
}

// GroupOption configures a [Group].
type GroupOption func(*groupOptions)

type groupOptions struct {
	now     func() time.Time
	metrics *observe.Metrics
}

// WithClock overrides the time source of every breaker in the group.
func WithClock(now func() time.Time) GroupOption {
	return func(o *groupOptions) { o.now = now }
}

// WithMetrics records failovers as provider errors of kind "failover".
func WithMetrics(m *observe.Metrics) GroupOption {
	return func(o *groupOptions) { o.metrics = m }
}

// NewGroup returns a group whose only member is primary.
func NewGroup[T any](name string, primary T, cfg BreakerConfig, opts ...GroupOption) *Group[T] {
	var o groupOptions
	for _, fn := range opts {
		fn(&o)
	}
	g := &Group[T]{cfg: cfg, now: o.now, metrics: o.metrics}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Fallbacks are tried in the order they were added.
// Add must not be called concurrently with [Do].
func (g *Group[T]) Add(name string, v T) {
	g.members = append(g.members, member[T]{value: v, breaker: NewBreaker(name, g.cfg, g.now)})
}

// Len returns the number of members, primary included.
func (g *Group[T]) Len() int { return len(g.members) }

// States returns every member's breaker state keyed by name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.breaker.Name()] = m.breaker.State()
	}
	return out
}

// Values returns the members in order.
func (g *Group[T]) Values() []T {
	out := make([]T, len(g.members))
	for i, m := range g.members {
		out[i] = m.value
	}
	return out
}

// Do calls fn on each member in order until one succeeds. Members with an
// open breaker are skipped. A cancelled ctx stops the failover without
// charging the remaining members.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var res R
		err := m.breaker.Execute(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.Info("served by fallback", "engine", m.breaker.Name())
			}
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping engine with open circuit", "engine", m.breaker.Name())
			continue
		}
		slog.Warn("engine failed", "engine", m.breaker.Name(), "err", err)
		if g.metrics != nil {
			g.metrics.RecordProviderError(ctx, m.breaker.Name(), "failover")
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
