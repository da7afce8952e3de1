package deltastream

import (
	"context"
	"errors"
	"sync"

	"agentloop/internal/application/port/output"
	"agentloop/internal/domain/entity"
)

var ErrClosed = errors.New("delta stream closed by consumer")

var (
	_ output.DeltaStream = (*SliceStream)(nil)
	_ output.DeltaStream = (*ChanStream)(nil)
)

type SliceStream struct {
	deltas []entity.Delta
	pos    int
}

func FromSlice(deltas []entity.Delta) *SliceStream {
	return &SliceStream{deltas: deltas}
}

func (s *SliceStream) Next() bool {
	if s.pos >= len(s.deltas) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Current() entity.Delta {
	if s.pos == 0 {
		return entity.Delta{}
	}
	return s.deltas[s.pos-1]
}

func (s *SliceStream) Err() error   { return nil }
func (s *SliceStream) Close() error { return nil }

// ChanStream connects a producer goroutine to a consumer. The producer calls
// Send for every delta and Finish exactly once; the consumer iterates with
// Next and calls Close when it stops reading.
type ChanStream struct {
	ctx     context.Context
	ch      chan entity.Delta
	done    chan struct{}
	current entity.Delta

	mu  sync.Mutex
	err error

	closeOnce  sync.Once
	finishOnce sync.Once
}

func NewChanStream(ctx context.Context, buffer int) *ChanStream {
	return &ChanStream{
		ctx:  ctx,
		ch:   make(chan entity.Delta, buffer),
		done: make(chan struct{}),
	}
}

func (s *ChanStream) Send(delta entity.Delta) error {
	select {
	case s.ch <- delta:
		return nil
	case <-s.done:
		return ErrClosed
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *ChanStream) Finish(err error) {
	s.finishOnce.Do(func() {
		s.setErr(err)
		close(s.ch)
	})
}

func (s *ChanStream) Next() bool {
	select {
	case delta, ok := <-s.ch:
		if !ok {
			return false
		}
		s.current = delta
		return true
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return false
	}
}

func (s *ChanStream) Current() entity.Delta {
	return s.current
}

func (s *ChanStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ChanStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *ChanStream) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
