// Package actor implements the mailbox actor: a unit of concurrent execution
// with an unbounded FIFO inbox, a single run loop, and a pluggable [Handler].
//
// Senders never block. The run loop blocks only while waiting for the next
// mailbox item. [Actor.Stop] enqueues a stop sentinel behind everything
// already sent and waits until the loop has drained up to and including it.
//
// A handler that returns an error or panics produces a [Fault]. The actor
// leaves service: its mailbox keeps accepting payloads but nothing is
// processed until [Actor.Restart] is called. Sibling actors are unaffected.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/kupo/internal/observe"
)

var (
	// ErrNoManager is returned by Start when no manager has been attached.
	ErrNoManager = errors.New("actor: no manager attached")

	// ErrAlreadyRunning is returned by Start on an actor that was started before.
	ErrAlreadyRunning = errors.New("actor: already started")

	// ErrStopped is returned by Start after the actor has been stopped.
	ErrStopped = errors.New("actor: stopped")

	// ErrNotFaulted is returned by Restart on an actor that has no fault.
	ErrNotFaulted = errors.New("actor: not faulted")

	// ErrMailboxClosed is returned by TrySend once Stop has sealed the mailbox.
	ErrMailboxClosed = errors.New("actor: mailbox closed")
)

// State is the lifecycle state of an [Actor].
type State int

const (
	// StateIdle means the actor has been created but not started.
	StateIdle State = iota

	// StateRunning means the run loop is consuming the mailbox.
	StateRunning

	// StateFaulted means a handler failed; the mailbox queues but is not drained.
	StateFaulted

	// StateStopped means the run loop consumed the stop sentinel and exited.
	StateStopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFaulted:
		return "faulted"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Handler processes one payload at a time. Calls are serialised: a slow
// handler delays only its own actor's queue.
type Handler interface {
	HandleMessage(ctx context.Context, payload any) error
}

// HandlerFunc adapts an ordinary function to [Handler].
type HandlerFunc func(ctx context.Context, payload any) error

// HandleMessage calls f(ctx, payload).
func (f HandlerFunc) HandleMessage(ctx context.Context, payload any) error {
	return f(ctx, payload)
}

// Manager routes payloads to named actors. The dispatcher registry is the
// production implementation.
type Manager interface {
	Send(target string, payload any) error
}

// Attacher is implemented by handlers that emit messages to other actors.
// AttachManager is called when the owning actor is attached to a manager.
type Attacher interface {
	AttachManager(m Manager)
}

// Fault records a handler failure that took an actor out of service.
type Fault struct {
	Actor string
	Err   error
}

// Error implements error.
func (f *Fault) Error() string {
	return fmt.Sprintf("actor %q faulted: %v", f.Actor, f.Err)
}

// Unwrap returns the handler error.
func (f *Fault) Unwrap() error { return f.Err }

// Option configures an [Actor].
type Option func(*Actor)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Actor) { a.metrics = m }
}

// WithFaultHook registers fn to be called (from the failing actor's
// goroutine) whenever the handler faults.
func WithFaultHook(fn func(*Fault)) Option {
	return func(a *Actor) { a.onFault = fn }
}

// Actor is a named mailbox with its own run loop.
type Actor struct {
	name    string
	handler Handler
	box     *mailbox
	metrics *observe.Metrics
	onFault func(*Fault)
	log     *slog.Logger

	mu    sync.Mutex
	mgr   Manager
	state State
	fault *Fault
	done  chan struct{}
}

// New creates an idle actor. It must be attached to a [Manager] before Start.
func New(name string, h Handler, opts ...Option) *Actor {
	a := &Actor{
		name:    name,
		handler: h,
		box:     newMailbox(),
		log:     slog.Default().With("actor", name),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Name returns the actor's registration name.
func (a *Actor) Name() string { return a.name }

// Attach binds the actor to m and forwards m to the handler when it
// implements [Attacher].
func (a *Actor) Attach(m Manager) {
	a.mu.Lock()
	a.mgr = m
	a.mu.Unlock()
	if at, ok := a.handler.(Attacher); ok {
		at.AttachManager(m)
	}
}

// Manager returns the attached manager, or nil.
func (a *Actor) Manager() Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mgr
}

// Start launches the run loop. Handlers receive a context derived from ctx
// that is never cancelled: in-flight messages always run to completion.
func (a *Actor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mgr == nil {
		return fmt.Errorf("%w: %q", ErrNoManager, a.name)
	}
	switch a.state {
	case StateIdle:
	case StateStopped:
		return fmt.Errorf("%w: %q", ErrStopped, a.name)
	default:
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, a.name)
	}
	a.launch(ctx)
	return nil
}

// Restart resumes a faulted actor. Payloads that queued up while it was out
// of service are processed in order; the payload that caused the fault is
// not retried.
func (a *Actor) Restart(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateFaulted {
		return fmt.Errorf("%w: %q is %s", ErrNotFaulted, a.name, a.state)
	}
	a.log.Info("restarting actor", "queued", a.box.len(), "fault", a.fault.Err)
	a.launch(ctx)
	return nil
}

// launch must be called with a.mu held.
func (a *Actor) launch(ctx context.Context) {
	a.state = StateRunning
	a.fault = nil
	a.done = make(chan struct{})
	go a.run(context.WithoutCancel(ctx), a.done)
}

// Send enqueues payload without blocking. Payloads sent after Stop are
// dropped.
func (a *Actor) Send(payload any) {
	_ = a.TrySend(payload)
}

// TrySend is Send that reports [ErrMailboxClosed] when the payload was dropped.
func (a *Actor) TrySend(payload any) error {
	if !a.box.push(payloadMessage{payload: payload}) {
		a.metrics.RecordDropped(context.Background(), a.name)
		a.log.Debug("dropped message after stop", "payload_type", fmt.Sprintf("%T", payload))
		return fmt.Errorf("%w: %q", ErrMailboxClosed, a.name)
	}
	a.metrics.AddMailboxDepth(context.Background(), a.name, 1)
	return nil
}

// Stop seals the mailbox behind a stop sentinel and waits until every
// payload sent before it has been handled. It returns the actor's fault, if
// any, or ctx.Err() when ctx expires first. An actor that is idle or faulted
// is not drained: its mailbox is sealed and Stop returns immediately. A
// faulted actor restarted after Stop drains up to the sentinel and exits.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	state, done := a.state, a.done
	switch state {
	case StateIdle:
		a.state = StateStopped
		a.box.seal()
		a.mu.Unlock()
		return nil
	case StateFaulted:
		a.box.push(stopMessage{})
		a.mu.Unlock()
		return a.Err()
	case StateStopped:
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	a.box.push(stopMessage{})

	select {
	case <-done:
		return a.Err()
	case <-ctx.Done():
		return fmt.Errorf("actor: stop %q: %w", a.name, ctx.Err())
	}
}

// Done returns a channel closed when the current run loop exits, or nil if
// the actor was never started.
func (a *Actor) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// State returns the current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Running reports whether the run loop is consuming the mailbox.
func (a *Actor) Running() bool { return a.State() == StateRunning }

// Err returns the current fault as an error, or nil.
func (a *Actor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fault == nil {
		return nil
	}
	return a.fault
}

// Pending returns the number of queued payloads.
func (a *Actor) Pending() int { return a.box.len() }

func (a *Actor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		switch m := a.box.pop().(type) {
		case stopMessage:
			a.mu.Lock()
			a.state = StateStopped
			a.mu.Unlock()
			a.log.Debug("actor stopped")
			return
		case payloadMessage:
			a.metrics.AddMailboxDepth(ctx, a.name, -1)
			if err := a.handle(ctx, m.payload); err != nil {
				a.fail(ctx, err)
				return
			}
		}
	}
}

func (a *Actor) handle(ctx context.Context, payload any) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		a.metrics.RecordHandled(ctx, a.name, time.Since(start).Seconds())
	}()
	return a.handler.HandleMessage(ctx, payload)
}

func (a *Actor) fail(ctx context.Context, err error) {
	f := &Fault{Actor: a.name, Err: err}

	a.mu.Lock()
	a.state = StateFaulted
	a.fault = f
	a.mu.Unlock()

	a.log.Error("actor fault; out of service until restarted", "err", err, "queued", a.box.len())
	a.metrics.RecordFault(ctx, a.name)
	if a.onFault != nil {
		a.onFault(f)
	}
}
