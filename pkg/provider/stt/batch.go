package stt

import (
	"context"
	"sync"
)

// TranscribeFunc transcribes a complete utterance.
type TranscribeFunc func(ctx context.Context, pcm []int16, cfg Config) (string, error)

// BatchStream buffers fed audio and transcribes it in one call on Finish.
// When maxSamples is positive the oldest audio is discarded beyond it.
type BatchStream struct {
	fn         TranscribeFunc
	cfg        Config
	maxSamples int

	mu     sync.Mutex
	pcm    []int16
	closed bool
}

// NewBatchStream returns a stream that calls fn on Finish.
func NewBatchStream(fn TranscribeFunc, cfg Config, maxSamples int) *BatchStream {
	return &BatchStream{fn: fn, cfg: cfg, maxSamples: maxSamples}
}

// Feed implements [Stream].
func (s *BatchStream) Feed(_ context.Context, block []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.pcm = append(s.pcm, block...)
	if s.maxSamples > 0 && len(s.pcm) > s.maxSamples {
		s.pcm = append(s.pcm[:0], s.pcm[len(s.pcm)-s.maxSamples:]...)
	}
	return nil
}

// Finish implements [Stream]. An empty buffer yields an empty transcript
// without calling the engine.
func (s *BatchStream) Finish(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrStreamClosed
	}
	s.closed = true
	pcm := s.pcm
	s.pcm = nil
	s.mu.Unlock()

	if len(pcm) == 0 {
		return "", nil
	}
	return s.fn(ctx, pcm, s.cfg)
}

// Buffered returns the number of samples waiting for Finish.
func (s *BatchStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pcm)
}

var _ Stream = (*BatchStream)(nil)
