// Package onset detects beats in the capture stream.
//
// Each frame's magnitude spectrum is compared with the previous frame's; the
// mean absolute difference (spectral flux) is pushed into a sliding
// [FluxHistory]. A frame is an onset when the history is full, its flux
// exceeds the 80th percentile of the history, and no refractory period from
// an earlier onset is still active.
package onset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/kupo/internal/actor"
	"github.com/MrWong99/kupo/internal/events"
	"github.com/MrWong99/kupo/internal/observe"
	"github.com/MrWong99/kupo/pkg/audio"
)

// Name is the conventional registration name of the detector actor.
const Name = "music-viz"

const (
	// DefaultBufferLen is the default flux history length in frames.
	DefaultBufferLen = 100

	// DefaultRefractory is the default minimum spacing between beats.
	DefaultRefractory = 200 * time.Millisecond

	// ThresholdPercentile is the history percentile a frame's flux must exceed.
	ThresholdPercentile = 80
)

// ErrEmptyFrame is returned for frames without samples.
var ErrEmptyFrame = errors.New("onset: empty frame")

// State is the detector's gating state.
type State int32

const (
	// StateWarming means the flux history is not yet full.
	StateWarming State = iota

	// StateArmed means detection is active.
	StateArmed

	// StateRefractory means a recent beat suppresses detection.
	StateRefractory
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateWarming:
		return "WARMING"
	case StateArmed:
		return "ARMED"
	case StateRefractory:
		return "REFRACTORY"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Beat is sent to the configured beat target on every onset.
type Beat struct {
	Seq       uint64
	Time      time.Time
	Flux      float64
	Threshold float64
	Energy    float64
}

// Config tunes a [Detector]. Zero values select the defaults.
type Config struct {
	BufferLen  int
	Refractory time.Duration

	// BeatTarget, when set, receives a [Beat] payload per onset.
	BeatTarget string
}

// Option configures a [Detector].
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithPublisher sets the event sink. Defaults to [events.Discard].
func WithPublisher(p events.Publisher) Option {
	return func(d *Detector) { d.events = p }
}

// Detector is an [actor.Handler] consuming [audio.Frame] payloads. All
// methods except State and Beats must be called from the owning actor's
// goroutine.
type Detector struct {
	cfg     Config
	now     func() time.Time
	metrics *observe.Metrics
	events  events.Publisher
	mgr     actor.Manager

	fft      *fourier.FFT
	coeffs   []complex128
	input    []float64
	spec     []float64
	prev     []float64
	history  *FluxHistory
	refStart time.Time
	inRef    bool

	state atomic.Int32
	beats atomic.Uint64
}

// New returns a detector in [StateWarming].
func New(cfg Config, opts ...Option) *Detector {
	if cfg.BufferLen <= 0 {
		cfg.BufferLen = DefaultBufferLen
	}
	if cfg.Refractory <= 0 {
		cfg.Refractory = DefaultRefractory
	}
	d := &Detector{
		cfg:     cfg,
		now:     time.Now,
		events:  events.Discard,
		history: NewFluxHistory(cfg.BufferLen),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// AttachManager implements [actor.Attacher].
func (d *Detector) AttachManager(m actor.Manager) { d.mgr = m }

// HandleMessage implements [actor.Handler].
func (d *Detector) HandleMessage(ctx context.Context, payload any) error {
	f, ok := payload.(audio.Frame)
	if !ok {
		return fmt.Errorf("onset: unexpected payload %T", payload)
	}
	_, err := d.Process(ctx, f)
	return err
}

// Process runs one frame through the detector and reports whether it was an
// onset.
func (d *Detector) Process(ctx context.Context, f audio.Frame) (bool, error) {
	if len(f.Samples) == 0 {
		return false, ErrEmptyFrame
	}
	energy := d.spectrum(f.Samples)

	var sum float64
	for i, v := range d.spec {
		diff := v - d.prev[i]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	var flux float64
	if len(d.spec) > 0 {
		flux = sum / float64(len(d.spec))
	}
	d.prev, d.spec = d.spec, d.prev
	if math.IsNaN(flux) || math.IsInf(flux, 0) {
		slog.Warn("dropping non-finite flux", "seq", f.Seq)
		return false, nil
	}

	d.history.Push(flux)
	threshold := d.history.Percentile(ThresholdPercentile)

	now := d.now()
	if d.inRef && now.Sub(d.refStart) >= d.cfg.Refractory {
		d.inRef = false
	}

	onset := d.history.Full() && flux > threshold && !d.inRef
	if onset {
		d.inRef = true
		d.refStart = now
		if err := d.emit(ctx, Beat{
			Seq:       f.Seq,
			Time:      now,
			Flux:      flux,
			Threshold: threshold,
			Energy:    energy,
		}); err != nil {
			d.storeState()
			return true, err
		}
	}
	d.storeState()
	return onset, nil
}

// spectrum fills d.spec with the magnitudes of bins 1.. of the real FFT of
// samples and returns the bin 0 magnitude.
func (d *Detector) spectrum(samples []float32) float64 {
	n := len(samples)
	if d.fft == nil || d.fft.Len() != n {
		d.fft = fourier.NewFFT(n)
		d.input = make([]float64, n)
		d.coeffs = nil
		bins := n / 2
		d.spec = make([]float64, bins)
		d.prev = make([]float64, bins)
	}
	for i, s := range samples {
		d.input[i] = float64(s)
	}
	d.coeffs = d.fft.Coefficients(d.coeffs, d.input)
	for i := range d.spec {
		d.spec[i] = cmplx.Abs(d.coeffs[i+1])
	}
	return cmplx.Abs(d.coeffs[0])
}

func (d *Detector) emit(ctx context.Context, b Beat) error {
	d.beats.Add(1)
	slog.Info("beat", "seq", b.Seq, "flux", b.Flux, "threshold", b.Threshold)
	d.metrics.Beats.Add(ctx, 1)
	d.events.Publish(events.Event{
		Kind:  events.KindBeat,
		Actor: Name,
		Time:  b.Time,
		Data: map[string]any{
			"seq":       b.Seq,
			"flux":      b.Flux,
			"threshold": b.Threshold,
			"energy":    b.Energy,
		},
	})
	if d.cfg.BeatTarget == "" {
		return nil
	}
	if d.mgr == nil {
		return fmt.Errorf("onset: beat target %q: %w", d.cfg.BeatTarget, actor.ErrNoManager)
	}
	if err := d.mgr.Send(d.cfg.BeatTarget, b); err != nil {
		return fmt.Errorf("onset: send beat: %w", err)
	}
	return nil
}

func (d *Detector) storeState() {
	s := StateArmed
	switch {
	case !d.history.Full():
		s = StateWarming
	case d.inRef:
		s = StateRefractory
	}
	d.state.Store(int32(s))
}

// State returns the gating state after the most recent frame. Safe for
// concurrent use.
func (d *Detector) State() State { return State(d.state.Load()) }

// Beats returns the number of onsets detected so far. Safe for concurrent use.
func (d *Detector) Beats() uint64 { return d.beats.Load() }

var (
	_ actor.Handler  = (*Detector)(nil)
	_ actor.Attacher = (*Detector)(nil)
)
