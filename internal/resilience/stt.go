package resilience

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/MrWong99/kupo/pkg/provider/stt"
)

// STT is an [stt.Engine] that fails over between transcription engines.
//
// Its streams buffer the fed blocks and replay them into the first healthy
// engine on Finish, so an engine that fails mid-utterance costs latency but
// not the transcript.
type STT struct {
	group *Group[stt.Engine]
}

// NewSTT wraps group.
func NewSTT(group *Group[stt.Engine]) *STT {
	return &STT{group: group}
}

// OpenStream implements [stt.Engine]. It never fails; engine errors surface
// from Finish.
func (f *STT) OpenStream(_ context.Context, cfg stt.Config) (stt.Stream, error) {
	return &replayStream{group: f.group, cfg: cfg}, nil
}

// Close closes every member implementing io.Closer.
func (f *STT) Close() error {
	return closeAll(f.group.Values())
}

type replayStream struct {
	group *Group[stt.Engine]
	cfg   stt.Config

	mu     sync.Mutex
	blocks [][]int16
	closed bool
}

func (s *replayStream) Feed(_ context.Context, block []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrStreamClosed
	}
	s.blocks = append(s.blocks, append([]int16(nil), block...))
	return nil
}

func (s *replayStream) Finish(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", stt.ErrStreamClosed
	}
	s.closed = true
	blocks := s.blocks
	s.blocks = nil
	s.mu.Unlock()

	return Do(ctx, s.group, func(e stt.Engine) (string, error) {
		return replay(ctx, e, s.cfg, blocks)
	})
}

func replay(ctx context.Context, e stt.Engine, cfg stt.Config, blocks [][]int16) (string, error) {
	st, err := e.OpenStream(ctx, cfg)
	if err != nil {
		return "", err
	}
	for _, b := range blocks {
		if err := st.Feed(ctx, b); err != nil {
			_, _ = st.Finish(ctx)
			return "", err
		}
	}
	return st.Finish(ctx)
}

func closeAll[T any](values []T) error {
	var errs []error
	for _, v := range values {
		if c, ok := any(v).(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

var _ stt.Engine = (*STT)(nil)
