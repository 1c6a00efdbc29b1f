// Package mock provides in-memory implementations of [audio.CaptureDevice]
// and [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments.
//
// Typical usage:
//
//	dev := &mock.CaptureDevice{Frames: []audio.Frame{f1, f2}}
//	frame, err := dev.Read(ctx) // f1
//	frame, err = dev.Read(ctx)  // f2
//	_, err = dev.Read(ctx)      // io.EOF
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/kupo/pkg/audio"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice replays a fixed list of frames and then reports io.EOF.
type CaptureDevice struct {
	mu sync.Mutex

	// Frames are returned by Read in order.
	Frames []audio.Frame

	// Errs, when set, supplies the error returned alongside Frames[i].
	// Use [audio.ErrOverflow] to simulate an input overflow.
	Errs map[int]error

	// BlockAtEnd makes Read block until ctx is done once Frames are
	// exhausted instead of returning io.EOF.
	BlockAtEnd bool

	// CloseErr is returned by Close.
	CloseErr error

	next       int
	CallsRead  int
	CallsClose int
}

// Read implements [audio.CaptureDevice].
func (d *CaptureDevice) Read(ctx context.Context) (audio.Frame, error) {
	d.mu.Lock()
	d.CallsRead++
	if d.next >= len(d.Frames) {
		block := d.BlockAtEnd
		d.mu.Unlock()
		if block {
			<-ctx.Done()
			return audio.Frame{}, ctx.Err()
		}
		return audio.Frame{}, io.EOF
	}
	i := d.next
	d.next++
	f, err := d.Frames[i], d.Errs[i]
	d.mu.Unlock()
	return f, err
}

// Close implements [audio.CaptureDevice].
func (d *CaptureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallsClose++
	return d.CloseErr
}

// Consumed returns how many frames have been read.
func (d *CaptureDevice) Consumed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records one invocation of [Player.Play].
type PlayCall struct {
	PCM        []int16
	SampleRate int
}

// Player records every clip it is asked to play.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// CloseErr is returned by Close.
	CloseErr error

	PlayCalls  []PlayCall
	CallsClose int
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, pcm []int16, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{PCM: append([]int16(nil), pcm...), SampleRate: sampleRate})
	return p.PlayErr
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallsClose++
	return p.CloseErr
}

// Calls returns a snapshot of recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.PlayCalls...)
}

var (
	_ audio.CaptureDevice = (*CaptureDevice)(nil)
	_ audio.Player        = (*Player)(nil)
)
