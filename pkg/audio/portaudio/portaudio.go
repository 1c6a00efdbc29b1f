// Package portaudio implements [audio.CaptureDevice] and [audio.Player] on the
// host's default PortAudio devices.
//
// PortAudio is reference counted: every device calls Initialize when opened
// and Terminate when closed, so capture and playback can coexist.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/kupo/pkg/audio"
)

// Capture reads mono float32 frames from the default input device.
type Capture struct {
	stream     *pa.Stream
	buf        []float32
	sampleRate int

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// OpenCapture opens and starts the default input device at sampleRate with
// frameSize samples per read.
func OpenCapture(sampleRate, frameSize int) (*Capture, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid capture format rate=%d frame=%d", sampleRate, frameSize)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	c := &Capture{buf: make([]float32, frameSize), sampleRate: sampleRate}
	stream, err := pa.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, c.buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}
	c.stream = stream
	slog.Info("audio capture opened", "device", "default", "sample_rate", sampleRate, "frame_size", frameSize)
	return c, nil
}

// Read blocks for one frame period. An input overflow is reported as
// [audio.ErrOverflow] together with the frame that was read.
func (c *Capture) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return audio.Frame{}, errors.New("portaudio: capture closed")
	}

	err := c.stream.Read()
	if err != nil && !errors.Is(err, pa.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
	}
	f := audio.Frame{
		Samples:    append([]float32(nil), c.buf...),
		SampleRate: c.sampleRate,
		Seq:        c.seq,
		Timestamp:  time.Duration(c.seq) * time.Duration(len(c.buf)) * time.Second / time.Duration(c.sampleRate),
	}
	c.seq++
	if err != nil {
		return f, audio.ErrOverflow
	}
	return f, nil
}

// Close stops the stream and releases PortAudio.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(c.stream.Stop(), c.stream.Close(), pa.Terminate())
}

// Player writes 16-bit mono PCM to the default output device. Each Play opens
// a stream at the clip's sample rate.
type Player struct {
	mu         sync.Mutex
	bufferSize int
	closed     bool
}

// NewPlayer initialises PortAudio for playback. bufferSize is the number of
// samples written per call; zero selects 1024.
func NewPlayer(bufferSize int) (*Player, error) {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Player{bufferSize: bufferSize}, nil
}

// Play blocks until pcm has been written or ctx is done. Playback is
// serialised.
func (p *Player) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("portaudio: player closed")
	}

	out := make([]int16, p.bufferSize)
	stream, err := pa.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm); off += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, pcm[off:])
		clear(out[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close releases PortAudio.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return pa.Terminate()
}

var (
	_ audio.CaptureDevice = (*Capture)(nil)
	_ audio.Player        = (*Player)(nil)
)
