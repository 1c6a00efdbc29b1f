// Package trigger implements a push-to-talk wake-word engine. Instead of
// spotting a keyword in audio it listens on a Unix socket; each "wake"
// command makes the next processed frame report a detection.
//
// The wire format is one JSON [Command] per connection, e.g.
//
//	{"cmd":"wake","keyword":0}
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/kupo/pkg/provider/wakeword"
)

// DefaultSocketPath is used when no path is configured.
const DefaultSocketPath = "/tmp/kupo.sock"

// CmdWake requests a detection on the next frame.
const CmdWake = "wake"

// ErrUnknownCommand is returned to clients that send anything but [CmdWake].
var ErrUnknownCommand = errors.New("trigger: unknown command")

// Command is the control message sent over the socket.
type Command struct {
	Cmd     string `json:"cmd"`
	Keyword int    `json:"keyword,omitempty"`
}

// reply is written back to the client.
type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Engine implements wakeword.Engine from socket commands.
type Engine struct {
	path string
	ln   net.Listener

	mu      sync.Mutex
	pending []int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen removes any stale socket at path, listens on it, and serves
// commands until Close.
func Listen(path string) (*Engine, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("trigger: listen %s: %w", path, err)
	}
	e := &Engine{path: path, ln: ln}
	e.wg.Add(1)
	go e.serve()
	slog.Info("wake trigger listening", "socket", path)
	return e, nil
}

// Path returns the socket path.
func (e *Engine) Path() string { return e.path }

// Wake queues a detection for keyword directly, without the socket.
func (e *Engine) Wake(keyword int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, keyword)
}

// Process implements wakeword.Engine. Each queued wake is reported once.
func (e *Engine) Process([]int16) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return wakeword.NoDetection, nil
	}
	k := e.pending[0]
	e.pending = e.pending[1:]
	return k, nil
}

// Close stops serving and removes the socket file.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.ln.Close()
		e.wg.Wait()
		_ = os.Remove(e.path)
	})
	return err
}

func (e *Engine) serve() {
	defer e.wg.Done()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("wake trigger accept failed", "err", err)
			continue
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleConn(conn)
		}()
	}
}

func (e *Engine) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		slog.Debug("wake trigger: bad command", "err", err)
		return
	}
	var r reply
	switch cmd.Cmd {
	case CmdWake:
		e.Wake(cmd.Keyword)
		r.OK = true
		slog.Debug("wake trigger received", "keyword", cmd.Keyword)
	default:
		r.Error = fmt.Sprintf("%v: %q", ErrUnknownCommand, cmd.Cmd)
	}
	_ = json.NewEncoder(conn).Encode(r)
}

// Send delivers cmd to the engine listening on path and waits for the reply.
func Send(ctx context.Context, path string, cmd Command) error {
	if path == "" {
		path = DefaultSocketPath
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("trigger: dial %s: %w", path, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return fmt.Errorf("trigger: send: %w", err)
	}
	var r reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return fmt.Errorf("trigger: read reply: %w", err)
	}
	if !r.OK {
		return errors.New(r.Error)
	}
	return nil
}

var _ wakeword.Engine = (*Engine)(nil)
