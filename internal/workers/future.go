package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTaskPanic wraps a panic recovered from a stage function.
var ErrTaskPanic = errors.New("task panicked")

// Future is the eventual result of a stage scheduled on an Executor.
type Future[T any] struct {
	done      chan struct{}
	mu        sync.Mutex
	val       T
	err       error
	callbacks []func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns an already resolved future.
func Completed[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(v, err)
	return f
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future resolves or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	f.val, f.err = v, err
	close(f.done)
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func (f *Future[T]) onComplete(cb func()) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		cb()
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Go schedules fn on ex.
func Go[T any](ctx context.Context, ex *Executor, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	schedule(ctx, ex, f, fn)
	return f
}

// Then schedules fn on ex once prev resolves successfully. An error from prev
// resolves the returned future with the same error without running fn.
func Then[A, B any](ctx context.Context, ex *Executor, prev *Future[A], fn func(context.Context, A) (B, error)) *Future[B] {
	next := newFuture[B]()
	prev.onComplete(func() {
		if prev.err != nil {
			var zero B
			next.complete(zero, prev.err)
			return
		}
		a := prev.val
		schedule(ctx, ex, next, func(ctx context.Context) (B, error) {
			return fn(ctx, a)
		})
	})
	return next
}

func schedule[T any](ctx context.Context, ex *Executor, f *Future[T], fn func(context.Context) (T, error)) {
	var zero T

	task := func() {
		defer func() {
			if r := recover(); r != nil {
				f.complete(zero, fmt.Errorf("%w: %v", ErrTaskPanic, r))
			}
		}()
		if err := ctx.Err(); err != nil {
			f.complete(zero, err)
			return
		}
		v, err := fn(ctx)
		f.complete(v, err)
	}

	if ex == nil {
		task()
		return
	}
	if err := ex.Submit(task); err != nil {
		f.complete(zero, err)
	}
}
