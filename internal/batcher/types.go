package batcher

import (
	"context"
	"errors"

	"vtgofer/internal/source"
	"vtgofer/internal/vt"
)

var (
	// ErrDropped is returned when the waiting buffer is full
	ErrDropped = errors.New("dropped")
	// ErrDuplicate is returned under the reject policy for a key already pending
	ErrDuplicate = errors.New("duplicate lookup pending")
	// ErrClosed is returned for submissions after shutdown
	ErrClosed = errors.New("source closed")
)

// Transport executes one batch query
type Transport interface {
	FetchReports(ctx context.Context, keys []string) ([]vt.Report, error)
}

// pendingEntry tracks every caller waiting on one key
type pendingEntry struct {
	waiters    []chan source.Outcome
	dispatched bool // key has been sent in a batch
	misses     int  // ticks since dispatch without a matching report
	claimed    bool // removed on purpose, not evicted
}

// resolve delivers out to every waiter. Channels are buffered with room for
// exactly one outcome, so this never blocks.
func (e *pendingEntry) resolve(out source.Outcome) {
	for _, w := range e.waiters {
		w <- out
	}
	e.waiters = nil
}

// newOutcomeChan creates the per-caller delivery channel
func newOutcomeChan() chan source.Outcome {
	return make(chan source.Outcome, 1)
}

// immediate returns a channel already holding out
func immediate(out source.Outcome) <-chan source.Outcome {
	ch := newOutcomeChan()
	ch <- out
	return ch
}
