// Package dispatch owns the set of named actors and routes envelopes between
// them.
//
// Registration happens in a single-threaded setup phase before [Registry.StartAll];
// afterwards the name table is read-only. Routed payloads travel through the
// dispatcher's own mailbox so producers never block on consumers, and
// [Registry.StopAll] shuts down leaves before the dispatcher itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kupo/internal/actor"
)

// Name is the registration name of the dispatcher's own actor.
const Name = "dispatcher"

var (
	// ErrDuplicateName is returned by Register when an actor with the same
	// name is already registered.
	ErrDuplicateName = errors.New("dispatch: duplicate actor name")

	// ErrUnknownTarget is returned when an envelope addresses an actor that
	// is not registered.
	ErrUnknownTarget = errors.New("dispatch: unknown target")

	// ErrAlreadyStarted is returned by Register after StartAll.
	ErrAlreadyStarted = errors.New("dispatch: registry already started")
)

// Envelope addresses a payload to exactly one registered actor.
type Envelope struct {
	Target  string
	Payload any
}

// Option configures a [Registry].
type Option func(*Registry)

// WithActorOptions applies opts to the dispatcher's own actor.
func WithActorOptions(opts ...actor.Option) Option {
	return func(r *Registry) { r.selfOpts = append(r.selfOpts, opts...) }
}

// Registry maps names to actors and routes envelopes between them. It
// implements [actor.Manager].
type Registry struct {
	selfOpts []actor.Option
	self     *actor.Actor

	mu      sync.RWMutex
	actors  map[string]*actor.Actor
	order   []string
	started bool
	stopped bool
}

// New creates an empty registry with its dispatcher actor.
func New(opts ...Option) *Registry {
	r := &Registry{actors: make(map[string]*actor.Actor)}
	for _, o := range opts {
		o(r)
	}
	r.self = actor.New(Name, actor.HandlerFunc(r.forward), r.selfOpts...)
	r.self.Attach(r)
	return r
}

// Register binds a to the registry and attaches the registry as its manager.
// It fails with [ErrDuplicateName] if the name is taken, leaving the registry
// unchanged.
func (r *Registry) Register(a *actor.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("%w: cannot register %q", ErrAlreadyStarted, a.Name())
	}
	if _, ok := r.actors[a.Name()]; ok || a.Name() == Name {
		return fmt.Errorf("%w: %q", ErrDuplicateName, a.Name())
	}
	r.actors[a.Name()] = a
	r.order = append(r.order, a.Name())
	a.Attach(r)
	return nil
}

// StartAll starts every registered actor in registration order, then the
// dispatcher. If any start fails, actors already started are stopped again.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	leaves := r.leavesLocked()
	r.mu.Unlock()

	for i, a := range leaves {
		if err := a.Start(ctx); err != nil {
			for _, s := range leaves[:i] {
				_ = s.Stop(ctx)
			}
			return fmt.Errorf("dispatch: start %q: %w", a.Name(), err)
		}
	}
	if err := r.self.Start(ctx); err != nil {
		for _, s := range leaves {
			_ = s.Stop(ctx)
		}
		return fmt.Errorf("dispatch: start dispatcher: %w", err)
	}

	slog.Info("actors started", "count", len(leaves), "actors", strings.Join(r.Names(), ","))
	return nil
}

// Send routes payload to the named actor through the dispatcher's mailbox.
// It never blocks. Unknown targets are reported immediately; the dispatch
// loop still re-validates every envelope.
func (r *Registry) Send(target string, payload any) error {
	return r.Route(Envelope{Target: target, Payload: payload})
}

// Route enqueues env on the dispatcher's mailbox.
func (r *Registry) Route(env Envelope) error {
	if r.Lookup(env.Target) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, env.Target)
	}
	return r.self.TrySend(env)
}

// Broadcast delivers payload directly to each named actor's mailbox,
// bypassing the dispatcher. Used by the capture loop to fan frames out.
func (r *Registry) Broadcast(payload any, targets ...string) error {
	var errs []error
	for _, name := range targets {
		a := r.Lookup(name)
		if a == nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownTarget, name))
			continue
		}
		a.Send(payload)
	}
	return errors.Join(errs...)
}

// forward is the dispatcher's handler. An envelope for an unknown target is
// a configuration error and faults the dispatch loop.
func (r *Registry) forward(_ context.Context, payload any) error {
	env, ok := payload.(Envelope)
	if !ok {
		return fmt.Errorf("dispatch: unexpected payload %T", payload)
	}
	a := r.Lookup(env.Target)
	if a == nil {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, env.Target)
	}
	a.Send(env.Payload)
	return nil
}

// StopAll signals every registered actor, waits for each to drain, then
// stops the dispatcher. It returns the joined faults of any actor that was
// out of service, or the context error if draining did not finish in time.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	leaves := r.leavesLocked()
	r.mu.Unlock()

	errs := make([]error, len(leaves))
	var g errgroup.Group
	for i, a := range leaves {
		g.Go(func() error {
			errs[i] = a.Stop(ctx)
			return nil
		})
	}
	_ = g.Wait()

	errs = append(errs, r.self.Stop(ctx))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dispatch: stop all: %w", err)
	}
	slog.Info("actors stopped", "count", len(leaves))
	return nil
}

// Lookup returns the named actor, or nil.
func (r *Registry) Lookup(name string) *actor.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actors[name]
}

// Dispatcher returns the dispatcher's own actor.
func (r *Registry) Dispatcher() *actor.Actor { return r.self }

// Names returns registered actor names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Check reports an error naming every actor (the dispatcher included) that is
// not running. It is intended for readiness probes.
func (r *Registry) Check(context.Context) error {
	r.mu.RLock()
	all := append(r.leavesLocked(), r.self)
	r.mu.RUnlock()

	var down []string
	for _, a := range all {
		if !a.Running() {
			down = append(down, a.Name()+"="+a.State().String())
		}
	}
	if len(down) == 0 {
		return nil
	}
	sort.Strings(down)
	return fmt.Errorf("dispatch: actors not running: %s", strings.Join(down, ", "))
}

// RestartFaulted restarts every faulted actor and returns their names.
func (r *Registry) RestartFaulted(ctx context.Context) []string {
	r.mu.RLock()
	all := append(r.leavesLocked(), r.self)
	r.mu.RUnlock()

	var restarted []string
	for _, a := range all {
		if a.State() != actor.StateFaulted {
			continue
		}
		if err := a.Restart(ctx); err == nil {
			restarted = append(restarted, a.Name())
		}
	}
	return restarted
}

func (r *Registry) leavesLocked() []*actor.Actor {
	out := make([]*actor.Actor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actors[name])
	}
	return out
}

var _ actor.Manager = (*Registry)(nil)
