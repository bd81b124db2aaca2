package channel

import (
	"context"
	"sync"
	"time"
)

// barrier is a single-use gate that senders wait on while the transport is
// being re-established. It is released exactly once, with nil on recovery or
// with the error that ended recovery.
type barrier struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newBarrier() *barrier {
	return &barrier{done: make(chan struct{})}
}

func (b *barrier) release(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

func (b *barrier) wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.done:
		return b.err
	case <-timer.C:
		return &TimeoutError{Op: "reconnect", Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
