package workerpool

import (
	"context"
	"sync"
)

// Future is the result handle of a queued task. It is resolved exactly once by
// the worker that runs the task. A task discarded by Stop never resolves its
// Future, so callers that may race with Stop should read through Get with a
// bounded context.
type Future[T any] struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any](id uint64) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

// resolve stores the outcome. Only the first call has any effect.
func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// ID returns the submission sequence number of the task.
func (f *Future[T]) ID() uint64 {
	return f.id
}

// Done returns a channel that is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the result is available without blocking.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task has run and returns its value and error.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Get is Wait bounded by ctx. If ctx ends first it returns the zero value and
// ctx.Err(); the task itself is not affected.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
