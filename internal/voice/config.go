package voice

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by [Config.WithDefaults].
const (
	DefaultSampleRate     = 16000
	DefaultBlockSize      = 512
	DefaultCommandTimeout = 10 * time.Second
	DefaultVADTimeout     = time.Second
	DefaultVADWindow      = 32
	DefaultVADThreshold   = 0.9
	DefaultVADWindowMs    = 30
)

// ErrBlockSizeMismatch is returned when the frame length is not a multiple
// of the transcription block size. Capture cadence and engine block size
// must be configured together.
var ErrBlockSizeMismatch = errors.New("voice: frame size is not a multiple of block size")

// Config tunes a [Pipeline]. Zero values select the defaults.
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// FrameSize, when non-zero, is checked against BlockSize at construction.
	FrameSize int

	// BlockSize is the number of samples per transcription Feed call.
	BlockSize int

	// CommandTimeout caps the length of a listening session.
	CommandTimeout time.Duration

	// VADTimeout is how long the speaker must stay quiet before the session
	// ends.
	VADTimeout time.Duration

	// VADWindow is the number of per-frame decisions in the voting window.
	VADWindow int

	// VADThreshold is the speech fraction a full window must exceed to count
	// as active.
	VADThreshold float64

	// VADWindowMs is the length of each of the two VAD probes per frame.
	VADWindowMs int

	// Language is passed to the transcription engine.
	Language string
}

// WithDefaults returns c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.VADTimeout <= 0 {
		c.VADTimeout = DefaultVADTimeout
	}
	if c.VADWindow <= 0 {
		c.VADWindow = DefaultVADWindow
	}
	if c.VADThreshold <= 0 {
		c.VADThreshold = DefaultVADThreshold
	}
	if c.VADWindowMs <= 0 {
		c.VADWindowMs = DefaultVADWindowMs
	}
	return c
}

// CheckFrame reports [ErrBlockSizeMismatch] when n samples cannot be split
// into whole blocks.
func (c Config) CheckFrame(n int) error {
	if c.BlockSize <= 0 || n <= 0 || n%c.BlockSize != 0 {
		return fmt.Errorf("%w: frame %d, block %d", ErrBlockSizeMismatch, n, c.BlockSize)
	}
	return nil
}

// probeSamples returns the number of samples in one VAD probe.
func (c Config) probeSamples() int {
	return c.SampleRate * c.VADWindowMs / 1000
}
