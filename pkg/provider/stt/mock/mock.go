// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to control the transcript each stream produces and to inspect
// which audio was fed into it.
//
// Example:
//
//	e := &mock.Engine{Texts: []string{"guess what"}}
//	s, _ := e.OpenStream(ctx, stt.Config{SampleRate: 16000})
//	s.Feed(ctx, block)
//	text, _ := s.Finish(ctx) // "guess what"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/stt"
)

// OpenStreamCall records a single invocation of Engine.OpenStream.
type OpenStreamCall struct {
	Cfg stt.Config
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Texts are the transcripts returned by successive streams' Finish. Once
	// exhausted, Finish returns "".
	Texts []string

	// OpenErr, if non-nil, is returned by OpenStream.
	OpenErr error

	// FinishErr, if non-nil, is returned by every stream's Finish.
	FinishErr error

	// OpenStreamCalls records every call to OpenStream.
	OpenStreamCalls []OpenStreamCall

	// Streams holds every stream handed out, in order.
	Streams []*Stream
}

// OpenStream records the call and returns a new [Stream].
func (e *Engine) OpenStream(_ context.Context, cfg stt.Config) (stt.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenStreamCalls = append(e.OpenStreamCalls, OpenStreamCall{Cfg: cfg})
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	s := &Stream{FinishErr: e.FinishErr}
	if i := len(e.Streams); i < len(e.Texts) {
		s.Text = e.Texts[i]
	}
	e.Streams = append(e.Streams, s)
	return s, nil
}

// StreamCount returns the number of streams opened. Thread-safe.
func (e *Engine) StreamCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Streams)
}

// Stream returns the i-th opened stream. Thread-safe.
func (e *Engine) Stream(i int) *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Streams[i]
}

// Stream is a mock implementation of stt.Stream.
type Stream struct {
	mu sync.Mutex

	// Text is returned by Finish.
	Text string

	// FeedErr, if non-nil, is returned by Feed.
	FeedErr error

	// FinishErr, if non-nil, is returned by Finish.
	FinishErr error

	// Blocks records a copy of every fed block.
	Blocks [][]int16

	// FinishCount is the number of Finish calls.
	FinishCount int
}

// Feed records the block and returns FeedErr.
func (s *Stream) Feed(_ context.Context, block []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FinishCount > 0 {
		return stt.ErrStreamClosed
	}
	s.Blocks = append(s.Blocks, append([]int16(nil), block...))
	return s.FeedErr
}

// Finish records the call and returns Text, FinishErr.
func (s *Stream) Finish(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishCount++
	if s.FinishCount > 1 {
		return "", stt.ErrStreamClosed
	}
	return s.Text, s.FinishErr
}

// FedBlocks returns the number of fed blocks. Thread-safe.
func (s *Stream) FedBlocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Blocks)
}

// Finished reports whether Finish was called. Thread-safe.
func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinishCount > 0
}

var (
	_ stt.Engine = (*Engine)(nil)
	_ stt.Stream = (*Stream)(nil)
)
