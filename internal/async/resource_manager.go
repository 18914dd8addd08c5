package async

import (
	"sync"
	"time"

	"idbcore/internal/coreerr"
)

// rmState is the ResourceManager per-resource state machine position
// (spec §4.1):
//
//	IDLE --acquire--> PREPARING --prepare.resolve--> LIVE(n=1)
//	LIVE(n) --acquire--> LIVE(n+1)   (sharable only)
//	LIVE(n) --release--> LIVE(n-1)   (n>1)
//	LIVE(1) --release--> POOLED      (timer started)
//	POOLED --acquire before timer--> LIVE(1)
//	POOLED --timer fires--> TEARING_DOWN --teardown.resolve--> IDLE
type rmState int

const (
	rmIdle rmState = iota
	rmPreparing
	rmLive
	rmPooled
	rmTearingDown
)

// ResourceManagerConfig supplies the caller's prepare/teardown hooks and
// the manager's pooling policy.
type ResourceManagerConfig[T any] struct {
	// Prepare constructs the resource. Invoked at most once while no
	// live instance exists.
	Prepare func() (T, error)
	// Teardown releases the resource once the pool-timeout has elapsed
	// with no re-acquisition.
	Teardown func(T) error
	// Sharable allows concurrent acquisitions of one live instance;
	// when false, acquisitions beyond the first queue FIFO.
	Sharable bool
	// AcquisitionTimeout bounds how long Acquire waits to become LIVE.
	AcquisitionTimeout time.Duration
	// PoolTimeout is how long an idle (LIVE->POOLED) instance survives
	// before Teardown runs.
	PoolTimeout time.Duration
}

// acquireResult is delivered directly to a queued waiter once the
// manager hands it the live instance, avoiding a re-check of shared
// state that would otherwise race the waiter back into the queue.
type acquireResult[T any] struct {
	value T
	err   error
}

// ResourceManager is a process-wide registry holding at most one live
// instance of an expensive-to-construct resource (spec §3/§4.1).
type ResourceManager[T any] struct {
	mu      sync.Mutex
	cfg     ResourceManagerConfig[T]
	state   rmState
	value   T
	refs    int
	waiters []chan acquireResult[T] // FIFO queue for non-sharable serialization
	timer   *time.Timer
}

// NewResourceManager constructs a manager in the IDLE state.
func NewResourceManager[T any](cfg ResourceManagerConfig[T]) *ResourceManager[T] {
	if cfg.AcquisitionTimeout <= 0 {
		cfg.AcquisitionTimeout = 30 * time.Second
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = 5 * time.Second
	}
	return &ResourceManager[T]{cfg: cfg, state: rmIdle}
}

// Acquire returns a ScopedContext wrapping the live resource. Release
// must be called exactly once (directly, or via ScopedContext.Use) to
// return the instance to the pool.
func (rm *ResourceManager[T]) Acquire() *ScopedContext[T] {
	out, resolve, reject, cancel := NewFuture[T]()

	go func() {
		v, err := rm.doAcquire(rm.cfg.AcquisitionTimeout)
		if err != nil {
			if coreerr.IsKind(err, coreerr.KindCancelled) {
				cancel()
			} else {
				reject(err)
			}
			return
		}
		resolve(v)
	}()

	return NewScopedContext(out, func() { rm.release() })
}

func (rm *ResourceManager[T]) doAcquire(deadline time.Duration) (T, error) {
	deadlineAt := time.Now().Add(deadline)
	for {
		rm.mu.Lock()
		switch rm.state {
		case rmIdle:
			rm.state = rmPreparing
			rm.mu.Unlock()
			v, err := rm.cfg.Prepare()
			rm.mu.Lock()
			if err != nil {
				rm.state = rmIdle
				rm.mu.Unlock()
				var zero T
				return zero, coreerr.Wrap(coreerr.KindPrecondition, "async.ResourceManager.Acquire", err, "prepare failed")
			}
			rm.value = v
			rm.refs = 1
			rm.state = rmLive
			rm.mu.Unlock()
			return v, nil

		case rmPooled:
			rm.cancelTimerLocked()
			rm.state = rmLive
			rm.refs = 1
			v := rm.value
			rm.mu.Unlock()
			return v, nil

		case rmLive:
			if rm.cfg.Sharable {
				rm.refs++
				v := rm.value
				rm.mu.Unlock()
				return v, nil
			}
			// Non-sharable: queue FIFO behind the current holder. The
			// waiter's acquire-future resolves only once the holder
			// ahead of it releases and hands the instance over
			// directly (spec §8: "the second's acquire-future resolves
			// only after the first's release-future has").
			ch := make(chan acquireResult[T], 1)
			rm.waiters = append(rm.waiters, ch)
			rm.mu.Unlock()
			remaining := time.Until(deadlineAt)
			if remaining <= 0 {
				var zero T
				return zero, coreerr.New(coreerr.KindTimeout, "async.ResourceManager.Acquire", "acquisition timed out waiting in queue")
			}
			select {
			case res := <-ch:
				return res.value, res.err
			case <-time.After(remaining):
				var zero T
				return zero, coreerr.New(coreerr.KindTimeout, "async.ResourceManager.Acquire", "acquisition timed out waiting in queue")
			}

		case rmPreparing, rmTearingDown:
			rm.mu.Unlock()
			remaining := time.Until(deadlineAt)
			if remaining <= 0 {
				var zero T
				return zero, coreerr.New(coreerr.KindTimeout, "async.ResourceManager.Acquire", "acquisition timed out")
			}
			time.Sleep(minDuration(remaining, 5*time.Millisecond))
			continue
		}
	}
}

func (rm *ResourceManager[T]) release() {
	rm.mu.Lock()
	if rm.state != rmLive {
		rm.mu.Unlock()
		return
	}
	rm.refs--
	if rm.refs > 0 {
		rm.mu.Unlock()
		return
	}

	// Last user released. If another acquirer is already queued, hand
	// the instance to them directly instead of pooling it.
	if len(rm.waiters) > 0 {
		ch := rm.waiters[0]
		rm.waiters = rm.waiters[1:]
		rm.refs = 1
		v := rm.value
		rm.mu.Unlock()
		ch <- acquireResult[T]{value: v}
		return
	}

	rm.state = rmPooled
	rm.timer = time.AfterFunc(rm.cfg.PoolTimeout, rm.onPoolTimeout)
	rm.mu.Unlock()
}

func (rm *ResourceManager[T]) cancelTimerLocked() {
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
}

func (rm *ResourceManager[T]) onPoolTimeout() {
	rm.mu.Lock()
	if rm.state != rmPooled {
		// Re-acquired within the grace window; teardown cancelled.
		rm.mu.Unlock()
		return
	}
	rm.state = rmTearingDown
	v := rm.value
	rm.mu.Unlock()

	var teardownErr error
	if rm.cfg.Teardown != nil {
		teardownErr = rm.cfg.Teardown(v)
	}

	rm.mu.Lock()
	rm.state = rmIdle
	var zero T
	rm.value = zero
	rm.mu.Unlock()

	if teardownErr != nil {
		// Teardown only ever runs here, on the pool timer, after every
		// release has already returned; release itself reports nothing.
		// The error is therefore discarded and not seen by any caller.
		_ = teardownErr
	}
}

// LiveCount reports the current reference count, for tests and metrics.
func (rm *ResourceManager[T]) LiveCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.state == rmLive {
		return rm.refs
	}
	return 0
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
