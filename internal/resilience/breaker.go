// Package resilience fails over between speech engines.
//
// A [Breaker] stops calling an engine after repeated failures and probes it
// again once a cool-down has passed. A [Group] holds a primary engine and its
// fallbacks, each behind its own breaker, and tries them in order. [STT] and
// [TTS] adapt a Group to the stt and tts engine interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probes through. One failure
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults for zero [BreakerConfig] fields.
const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = DefaultHalfOpenMax
	}
	return c
}

// Breaker is a three-state circuit breaker around one engine.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int // in flight or completed while half-open
	passed   int // successful probes while half-open
}

// NewBreaker returns a closed breaker. now may be nil to use [time.Now].
func NewBreaker(name string, cfg BreakerConfig, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: now}
}

// Name returns the label given to [NewBreaker].
func (b *Breaker) Name() string { return b.name }

// Execute runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Execute(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.probes, b.passed = 0, 0
		slog.Info("circuit half-open", "engine", b.name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err != nil && probe:
		b.trip()
	case err != nil:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	case probe:
		b.passed++
		if b.passed >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
			slog.Info("circuit closed", "engine", b.name)
		}
	default:
		b.failures = 0
	}
}

// trip opens the breaker. Caller holds b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	slog.Warn("circuit opened", "engine", b.name, "failures", b.failures)
}

// State returns the current state. An open breaker whose timeout has passed
// reports half-open; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.probes, b.passed = 0, 0, 0
}
