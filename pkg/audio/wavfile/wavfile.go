// Package wavfile plays a WAV file as an [audio.CaptureDevice] and encodes
// PCM clips as WAV for engines that take file uploads.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/kupo/pkg/audio"
)

// ErrInvalidFile is returned when the input is not a readable WAV stream.
var ErrInvalidFile = errors.New("wavfile: invalid wav")

// Options configures a [Device].
type Options struct {
	// SampleRate is the rate frames are delivered at. The file is resampled
	// when its own rate differs.
	SampleRate int

	// FrameSize is the number of samples per frame.
	FrameSize int

	// Loop restarts from the beginning instead of returning io.EOF.
	Loop bool

	// Realtime paces Read at the frame cadence, like a microphone.
	Realtime bool
}

// Decode reads a whole WAV stream and returns mono samples at sampleRate.
func Decode(r io.ReadSeeker, sampleRate int) ([]float32, error) {
	x, rate, err := DecodeNative(r)
	if err != nil {
		return nil, err
	}
	return audio.Resample(x, rate, sampleRate), nil
}

// DecodeNative reads a whole WAV stream and returns mono samples at the
// file's own sample rate.
func DecodeNative(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidFile
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavfile: decode: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("%w: no samples", ErrInvalidFile)
	}

	channels, rate := 1, int(dec.SampleRate)
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	x := audio.IntsToFloat(buf.Data, int(dec.BitDepth))
	return audio.Downmix(x, channels), rate, nil
}

// Device replays decoded samples in fixed-size frames.
type Device struct {
	opts    Options
	samples []float32
	sleep   func(context.Context, time.Duration) error

	mu      sync.Mutex
	pos     int
	seq     uint64
	started time.Time
	closed  bool
}

// Open decodes the file at path into a [Device].
func Open(path string, opts Options) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open: %w", err)
	}
	defer f.Close()
	samples, err := Decode(f, opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("wavfile: %s: %w", path, err)
	}
	return NewDevice(samples, opts)
}

// NewDevice wraps already-decoded mono samples.
func NewDevice(samples []float32, opts Options) (*Device, error) {
	if opts.SampleRate <= 0 || opts.FrameSize <= 0 {
		return nil, fmt.Errorf("wavfile: invalid format rate=%d frame=%d", opts.SampleRate, opts.FrameSize)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInvalidFile)
	}
	return &Device{opts: opts, samples: samples, sleep: sleepCtx}, nil
}

// Read returns the next frame. The final frame of a non-looping file is
// zero-padded; after it Read returns io.EOF.
func (d *Device) Read(ctx context.Context) (audio.Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return audio.Frame{}, io.ErrClosedPipe
	}
	if d.pos >= len(d.samples) {
		if !d.opts.Loop {
			d.mu.Unlock()
			return audio.Frame{}, io.EOF
		}
		d.pos = 0
	}

	n := d.opts.FrameSize
	out := make([]float32, n)
	filled := copy(out, d.samples[d.pos:])
	d.pos += filled
	for d.opts.Loop && filled < n {
		d.pos = copy(out[filled:], d.samples)
		filled += d.pos
	}

	frameDur := time.Duration(n) * time.Second / time.Duration(d.opts.SampleRate)
	f := audio.Frame{
		Samples:    out,
		SampleRate: d.opts.SampleRate,
		Seq:        d.seq,
		Timestamp:  time.Duration(d.seq) * frameDur,
	}
	d.seq++
	if d.started.IsZero() {
		d.started = time.Now()
	}
	wait := time.Until(d.started.Add(time.Duration(d.seq) * frameDur))
	d.mu.Unlock()

	if d.opts.Realtime && wait > 0 {
		if err := d.sleep(ctx, wait); err != nil {
			return audio.Frame{}, err
		}
	}
	return f, nil
}

// Close releases the decoded samples. Subsequent reads fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.samples = nil
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Encode writes pcm as a 16-bit mono WAV stream.
func Encode(w io.WriteSeeker, pcm []int16, sampleRate int) error {
	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: finalize: %w", err)
	}
	return nil
}

// EncodeBytes is [Encode] into memory.
func EncodeBytes(pcm []int16, sampleRate int) ([]byte, error) {
	var ws writeSeeker
	if err := Encode(&ws, pcm, sampleRate); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("wavfile: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("wavfile: negative seek")
	}
	w.pos = int(abs)
	return abs, nil
}

var _ audio.CaptureDevice = (*Device)(nil)
