package actor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/kupo/internal/actor"
)

// nopManager satisfies actor.Manager and records nothing.
type nopManager struct{}

func (nopManager) Send(string, any) error { return nil }

// recorder is a Handler that records every payload it sees.
type recorder struct {
	mu   sync.Mutex
	seen []any
	fail func(payload any) error
}

func (r *recorder) HandleMessage(_ context.Context, payload any) error {
	if r.fail != nil {
		if err := r.fail(payload); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.seen = append(r.seen, payload)
	r.mu.Unlock()
	return nil
}

func (r *recorder) payloads() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.seen))
	copy(out, r.seen)
	return out
}

func startActor(t *testing.T, name string, h actor.Handler, opts ...actor.Option) *actor.Actor {
	t.Helper()
	a := actor.New(name, h, opts...)
	a.Attach(nopManager{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func stopCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStart_RequiresManager(t *testing.T) {
	t.Parallel()
	a := actor.New("lonely", &recorder{})
	err := a.Start(context.Background())
	if !errors.Is(err, actor.ErrNoManager) {
		t.Fatalf("Start error = %v, want ErrNoManager", err)
	}
	if a.State() != actor.StateIdle {
		t.Errorf("state = %s, want idle", a.State())
	}
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()
	a := startActor(t, "twice", &recorder{})
	defer a.Stop(stopCtx(t))

	if err := a.Start(context.Background()); !errors.Is(err, actor.ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}
}

func TestStop_DrainsInOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	a := startActor(t, "fifo", rec)

	const n = 500
	for i := range n {
		a.Send(i)
	}
	if err := a.Stop(stopCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := rec.payloads()
	if len(got) != n {
		t.Fatalf("handled %d payloads, want %d", len(got), n)
	}
	for i, p := range got {
		if p != i {
			t.Fatalf("payload[%d] = %v, want %d", i, p, i)
		}
	}
	if a.Running() {
		t.Error("actor still running after Stop")
	}
	select {
	case <-a.Done():
	default:
		t.Error("run loop still alive after Stop")
	}
}

func TestSend_AfterStopIsDropped(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	a := startActor(t, "late", rec)
	if err := a.Stop(stopCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := a.TrySend("late"); !errors.Is(err, actor.ErrMailboxClosed) {
		t.Errorf("TrySend after Stop = %v, want ErrMailboxClosed", err)
	}
	a.Send("also late")
	if len(rec.payloads()) != 0 {
		t.Errorf("handled %v after stop, want nothing", rec.payloads())
	}
	if err := a.Start(context.Background()); !errors.Is(err, actor.ErrStopped) {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()
	a := startActor(t, "again", &recorder{})
	ctx := stopCtx(t)
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := a.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestStop_NeverStarted(t *testing.T) {
	t.Parallel()
	a := actor.New("idle", &recorder{})
	if err := a.Stop(stopCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.State() != actor.StateStopped {
		t.Errorf("state = %s, want stopped", a.State())
	}
}

func TestSend_DoesNotBlockOnSlowHandler(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	h := actor.HandlerFunc(func(context.Context, any) error {
		<-release
		return nil
	})
	a := startActor(t, "slow", h)

	done := make(chan struct{})
	go func() {
		for i := range 10_000 {
			a.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked behind a slow handler")
	}
	close(release)
	if err := a.Stop(stopCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Pending() != 0 {
		t.Errorf("Pending = %d after Stop, want 0", a.Pending())
	}
}

func TestHandlerError_FaultsActor(t *testing.T) {
	t.Parallel()
	boom := errors.New("engine unavailable")
	faults := make(chan *actor.Fault, 1)
	rec := &recorder{fail: func(p any) error {
		if p == "bad" {
			return boom
		}
		return nil
	}}
	a := startActor(t, "fragile", rec, actor.WithFaultHook(func(f *actor.Fault) { faults <- f }))

	a.Send("ok-1")
	a.Send("bad")

	var f *actor.Fault
	select {
	case f = <-faults:
	case <-time.After(2 * time.Second):
		t.Fatal("fault hook not called")
	}
	if f.Actor != "fragile" || !errors.Is(f, boom) {
		t.Errorf("fault = %v, want fragile wrapping %v", f, boom)
	}

	<-a.Done()
	if a.State() != actor.StateFaulted {
		t.Fatalf("state = %s, want faulted", a.State())
	}

	// Inert but still accepting.
	a.Send("ok-2")
	a.Send("ok-3")
	if a.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", a.Pending())
	}

	var fault *actor.Fault
	if err := a.Err(); !errors.As(err, &fault) {
		t.Errorf("Err = %v, want *actor.Fault", err)
	}

	// Stop on a faulted actor returns immediately with the fault.
	if err := a.Stop(stopCtx(t)); !errors.Is(err, boom) {
		t.Errorf("Stop = %v, want fault wrapping %v", err, boom)
	}
	if got := rec.payloads(); len(got) != 1 || got[0] != "ok-1" {
		t.Errorf("handled %v, want [ok-1]", got)
	}
}

func TestHandlerPanic_FaultsActor(t *testing.T) {
	t.Parallel()
	h := actor.HandlerFunc(func(context.Context, any) error {
		panic("index out of range")
	})
	a := startActor(t, "panicky", h)
	a.Send(1)
	<-a.Done()

	if a.State() != actor.StateFaulted {
		t.Fatalf("state = %s, want faulted", a.State())
	}
	if err := a.Err(); err == nil {
		t.Fatal("Err = nil, want panic fault")
	}
}

func TestRestart_ResumesQueuedPayloads(t *testing.T) {
	t.Parallel()
	rec := &recorder{fail: func(p any) error {
		if p == "bad" {
			return errors.New("bad payload")
		}
		return nil
	}}
	a := startActor(t, "phoenix", rec)

	a.Send("bad")
	<-a.Done()
	a.Send("a")
	a.Send("b")

	if err := a.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if err := a.Stop(stopCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	got := rec.payloads()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("handled %v, want [a b]", got)
	}
}

func TestRestart_NotFaulted(t *testing.T) {
	t.Parallel()
	a := startActor(t, "healthy", &recorder{})
	defer a.Stop(stopCtx(t))
	if err := a.Restart(context.Background()); !errors.Is(err, actor.ErrNotFaulted) {
		t.Errorf("Restart = %v, want ErrNotFaulted", err)
	}
}

func TestRestart_AfterStopDrainsToSentinel(t *testing.T) {
	t.Parallel()
	rec := &recorder{fail: func(p any) error {
		if p == "bad" {
			return errors.New("bad payload")
		}
		return nil
	}}
	a := startActor(t, "late-restart", rec)
	a.Send("bad")
	<-a.Done()
	a.Send("queued")

	_ = a.Stop(stopCtx(t))
	if err := a.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("restarted actor did not exit at the stop sentinel")
	}
	if a.State() != actor.StateStopped {
		t.Errorf("state = %s, want stopped", a.State())
	}
	if got := rec.payloads(); len(got) != 1 || got[0] != "queued" {
		t.Errorf("handled %v, want [queued]", got)
	}
}

// attaching records the manager handed to it.
type attaching struct {
	recorder
	mgr actor.Manager
}

func (h *attaching) AttachManager(m actor.Manager) { h.mgr = m }

func TestAttach_ForwardsManagerToHandler(t *testing.T) {
	t.Parallel()
	h := &attaching{}
	a := actor.New("emitter", h)
	m := nopManager{}
	a.Attach(m)

	if h.mgr != m {
		t.Error("handler did not receive the manager")
	}
	if a.Manager() != m {
		t.Error("Manager() does not return the attached manager")
	}
}

func TestStop_ContextExpires(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	h := actor.HandlerFunc(func(context.Context, any) error {
		<-release
		return nil
	})
	a := startActor(t, "stuck", h)
	a.Send(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want DeadlineExceeded", err)
	}
	close(release)
	<-a.Done()
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    actor.State
		want string
	}{
		{actor.StateIdle, "idle"},
		{actor.StateRunning, "running"},
		{actor.StateFaulted, "faulted"},
		{actor.StateStopped, "stopped"},
		{actor.State(42), "State(42)"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tc.s), got, tc.want)
		}
	}
}
