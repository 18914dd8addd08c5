// Package async implements the future/promise primitive, the
// scoped-resource manager, and the data-consumer algebra that every other
// core subsystem builds on (spec §4.1).
package async

import (
	"context"
	"sync"
	"time"

	"idbcore/internal/coreerr"
)

// state is the terminal disposition of a Future.
type state int

const (
	statePending state = iota
	stateResolved
	stateRejected
	stateCancelled
)

// Future is a single-assignment cell that resolves with a value, rejects
// with a typed error, or is cancelled. It resolves at most once; every
// observer registered before or after resolution is notified exactly
// once (spec §3 invariants).
type Future[T any] struct {
	mu       sync.Mutex
	st       state
	value    T
	err      error
	done     chan struct{}
	onCancel func()
	observed bool
}

// NewFuture returns an unresolved Future paired with the resolver
// functions used to complete it. This mirrors the promise/future split
// common to futures libraries: the producer holds resolve/reject/cancel,
// the consumer holds the Future.
func NewFuture[T any]() (*Future[T], func(T), func(error), func()) {
	f := &Future[T]{done: make(chan struct{})}
	resolve := func(v T) { f.complete(stateResolved, v, nil) }
	reject := func(err error) { f.complete(stateRejected, *new(T), err) }
	cancel := func() { f.Cancel() }
	return f, resolve, reject, cancel
}

// WithCancelCallback registers a cooperative-cancellation callback
// invoked exactly once when Cancel is called on a still-pending future.
func (f *Future[T]) WithCancelCallback(onCancel func()) *Future[T] {
	f.mu.Lock()
	f.onCancel = onCancel
	f.mu.Unlock()
	return f
}

func (f *Future[T]) complete(st state, v T, err error) bool {
	f.mu.Lock()
	if f.st != statePending {
		f.mu.Unlock()
		return false
	}
	f.st = st
	f.value = v
	f.err = err
	close(f.done)
	f.mu.Unlock()
	return true
}

// Resolved returns a Future already completed with value v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), st: stateResolved, value: v}
	close(f.done)
	return f
}

// Rejected returns a Future already completed with err.
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), st: stateRejected, err: err}
	close(f.done)
	return f
}

// Cancel marks the future cancelled and fires its cancellation callback.
// Cancelling an already-terminal future is a no-op, matching the
// cooperative cancellation semantics of spec §4.1: cancellation never
// retroactively changes a resolved/rejected outcome.
func (f *Future[T]) Cancel() {
	f.mu.Lock()
	if f.st != statePending {
		f.mu.Unlock()
		return
	}
	cb := f.onCancel
	f.st = stateCancelled
	f.err = coreerr.OfKind(coreerr.KindCancelled)
	close(f.done)
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Await blocks until the future reaches a terminal state or deadline
// elapses, whichever comes first. A zero deadline means "no timeout".
func (f *Future[T]) Await(deadline time.Duration) (T, error) {
	if deadline <= 0 {
		<-f.done
		return f.result()
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result()
	case <-timer.C:
		var zero T
		return zero, coreerr.New(coreerr.KindTimeout, "future.Await", "deadline of %s exceeded", deadline)
	}
}

// AwaitContext blocks until the future reaches a terminal state or ctx is
// done.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		var zero T
		return zero, coreerr.Wrap(coreerr.KindCancelled, "future.AwaitContext", ctx.Err(), "context ended before future resolved")
	}
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Done returns a channel closed when the future reaches a terminal state.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsCancelled reports whether the future's terminal state is cancellation.
func (f *Future[T]) IsCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st == stateCancelled
}

// OnComplete registers callback to run on queue q once the future
// resolves. Observers are always invoked on q, never on whatever
// goroutine happened to resolve the future (spec §5: "callbacks are
// always invoked on the queue registered at subscription time").
func (f *Future[T]) OnComplete(q *Queue, callback func(T, error)) {
	go func() {
		<-f.done
		v, err := f.result()
		if q == nil {
			callback(v, err)
			return
		}
		q.Run(func() { callback(v, err) })
	}()
}

// Then chains a synchronous transform over a successful result, producing
// a new Future[U]. Rejection/cancellation propagate unchanged.
func Then[T, U any](f *Future[T], transform func(T) (U, error)) *Future[U] {
	out, resolve, reject, cancel := NewFuture[U]()
	out.WithCancelCallback(func() { f.Cancel() })
	go func() {
		v, err := f.result2()
		switch {
		case err != nil && f.IsCancelled():
			cancel()
		case err != nil:
			reject(err)
		default:
			u, terr := transform(v)
			if terr != nil {
				reject(terr)
				return
			}
			resolve(u)
		}
	}()
	return out
}

// result2 waits for terminal state before returning result(); separated
// from result() purely so Then doesn't need a second exported blocking
// accessor.
func (f *Future[T]) result2() (T, error) {
	<-f.done
	return f.result()
}

// FlatThen chains an asynchronous transform, flattening the resulting
// Future[U] rather than nesting it (spec's flat_then).
func FlatThen[T, U any](f *Future[T], transform func(T) *Future[U]) *Future[U] {
	out, resolve, reject, cancel := NewFuture[U]()
	out.WithCancelCallback(func() { f.Cancel() })
	go func() {
		v, err := f.result2()
		if err != nil {
			if f.IsCancelled() {
				cancel()
			} else {
				reject(err)
			}
			return
		}
		inner := transform(v)
		iv, ierr := inner.result2()
		if ierr != nil {
			if inner.IsCancelled() {
				cancel()
			} else {
				reject(ierr)
			}
			return
		}
		resolve(iv)
	}()
	return out
}

// Race returns a Future that adopts the outcome of whichever input future
// terminates first; the others are cancelled. Two futures completing
// concurrently never deadlock each other because each branch only ever
// writes to the shared output via sync.Once.
func Race[T any](futures []*Future[T]) *Future[T] {
	out, resolve, reject, cancel := NewFuture[T]()
	var once sync.Once
	for _, f := range futures {
		f := f
		go func() {
			v, err := f.result2()
			once.Do(func() {
				switch {
				case err != nil && f.IsCancelled():
					cancel()
				case err != nil:
					reject(err)
				default:
					resolve(v)
				}
				for _, other := range futures {
					if other != f {
						other.Cancel()
					}
				}
			})
		}()
	}
	return out
}
