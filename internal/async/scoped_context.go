package async

import (
	"sync"
	"time"

	"idbcore/internal/coreerr"
)

// ScopedContext owns a resource whose release is guaranteed on every exit
// path (spec §3/§4.1). It pairs an acquisition future with a teardown
// closure; composing contexts composes their teardowns in reverse
// acquisition order (LIFO).
type ScopedContext[T any] struct {
	acquire  *Future[T]
	teardown func()
	once     sync.Once
}

// NewScopedContext wraps an already-in-flight acquisition with the
// closure that must run, exactly once, when the context is released.
func NewScopedContext[T any](acquire *Future[T], teardown func()) *ScopedContext[T] {
	return &ScopedContext[T]{acquire: acquire, teardown: teardown}
}

// Use blocks up to deadline acquiring the value and runs body with it,
// guaranteeing teardown runs afterward regardless of body's outcome
// (spec's testable property: "scoped(ctx, body) always calls ctx's
// teardown, regardless of body's outcome").
func (c *ScopedContext[T]) Use(deadline time.Duration, body func(T) error) (err error) {
	defer c.Release()
	v, aerr := c.acquire.Await(deadline)
	if aerr != nil {
		return aerr
	}
	return body(v)
}

// UseAsync returns a future that resolves once body has run and the
// context has been released; equivalent to Use but non-blocking for the
// caller.
func (c *ScopedContext[T]) UseAsync(body func(T) error) *Future[struct{}] {
	out, resolve, reject, _ := NewFuture[struct{}]()
	go func() {
		err := c.Use(0, body)
		if err != nil {
			reject(err)
			return
		}
		resolve(struct{}{})
	}()
	return out
}

// Release runs teardown exactly once. Safe to call multiple times and
// safe to call even if the acquisition never completed (in which case the
// acquisition is cancelled as well).
func (c *ScopedContext[T]) Release() {
	c.once.Do(func() {
		c.acquire.Cancel()
		if c.teardown != nil {
			c.teardown()
		}
	})
}

// ComposeScopedContext chains a.Use -> makeB(a's value), releasing B
// before A whenever the composed context is released (LIFO teardown).
func ComposeScopedContext[A, B any](a *ScopedContext[A], makeB func(A) (*ScopedContext[B], error)) *ScopedContext[B] {
	resultFuture, resolve, reject, _ := NewFuture[B]()
	var bCtx *ScopedContext[B]
	var mu sync.Mutex

	go func() {
		av, err := a.acquire.AwaitContext(noopContext{})
		if err != nil {
			reject(coreerr.Wrap(coreerr.KindPrecondition, "async.ComposeScopedContext", err, "base context failed to acquire"))
			return
		}
		b, err := makeB(av)
		if err != nil {
			reject(err)
			return
		}
		mu.Lock()
		bCtx = b
		mu.Unlock()
		bv, err := b.acquire.AwaitContext(noopContext{})
		if err != nil {
			reject(err)
			return
		}
		resolve(bv)
	}()

	return NewScopedContext(resultFuture, func() {
		mu.Lock()
		b := bCtx
		mu.Unlock()
		if b != nil {
			b.Release()
		}
		a.Release()
	})
}

// noopContext is a context.Context that is never Done; used internally
// where ComposeScopedContext needs a blocking wait without exposing a
// caller-supplied context.Context dependency on the acquisition future.
type noopContext struct{}

func (noopContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (noopContext) Done() <-chan struct{}       { return nil }
func (noopContext) Err() error                  { return nil }
func (noopContext) Value(any) any               { return nil }
