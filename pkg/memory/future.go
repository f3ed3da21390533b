package memory

import (
	"context"
	"sync"
)

// Future is the eventual outcome of an ingest job: true once processed (even
// with zero facts extracted), false when dropped or failed.
type Future struct {
	once sync.Once
	done chan struct{}
	ok   bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(ok bool) *Future {
	f := newFuture()
	f.resolve(ok)
	return f
}

func (f *Future) resolve(ok bool) {
	f.once.Do(func() {
		f.ok = ok
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Result returns the outcome and whether the future has resolved.
func (f *Future) Result() (ok, resolved bool) {
	select {
	case <-f.done:
		return f.ok, true
	default:
		return false, false
	}
}
