package async

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceManager_SingleLiveInstance(t *testing.T) {
	var prepared int32
	rm := NewResourceManager(ResourceManagerConfig[int]{
		Prepare: func() (int, error) {
			atomic.AddInt32(&prepared, 1)
			return 7, nil
		},
		Teardown:    func(int) error { return nil },
		Sharable:    true,
		PoolTimeout: 20 * time.Millisecond,
	})

	c1 := rm.Acquire()
	c2 := rm.Acquire()

	require.NoError(t, c1.Use(time.Second, func(v int) error { return nil }))
	require.NoError(t, c2.Use(time.Second, func(v int) error { return nil }))

	assert.Equal(t, int32(1), atomic.LoadInt32(&prepared), "prepare should only run once for concurrent acquisitions")
}

func TestResourceManager_TeardownAfterPoolTimeout(t *testing.T) {
	teardownCh := make(chan struct{}, 1)
	rm := NewResourceManager(ResourceManagerConfig[int]{
		Prepare:     func() (int, error) { return 1, nil },
		Teardown:    func(int) error { teardownCh <- struct{}{}; return nil },
		PoolTimeout: 20 * time.Millisecond,
	})

	ctx := rm.Acquire()
	require.NoError(t, ctx.Use(time.Second, func(v int) error { return nil }))

	select {
	case <-teardownCh:
	case <-time.After(time.Second):
		t.Fatal("expected teardown to fire after pool timeout")
	}
}

func TestResourceManager_NonSharableQueuesSecondAcquirer(t *testing.T) {
	rm := NewResourceManager(ResourceManagerConfig[int]{
		Prepare:     func() (int, error) { return 1, nil },
		Teardown:    func(int) error { return nil },
		Sharable:    false,
		PoolTimeout: time.Second,
	})

	first := rm.Acquire()
	var firstReleased, secondAcquired time.Time

	done := make(chan struct{})
	go func() {
		second := rm.Acquire()
		_ = second.Use(time.Second, func(v int) error {
			secondAcquired = time.Now()
			return nil
		})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the second acquire start queueing
	time.Sleep(50 * time.Millisecond)
	firstReleased = time.Now()
	first.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquisition never completed")
	}

	assert.True(t, secondAcquired.After(firstReleased) || secondAcquired.Equal(firstReleased),
		"second acquisition must resolve after first release")
}

func TestResourceManager_ReacquireWithinGraceWindowCancelsTeardown(t *testing.T) {
	var teardownCount int32
	rm := NewResourceManager(ResourceManagerConfig[int]{
		Prepare:     func() (int, error) { return 1, nil },
		Teardown:    func(int) error { atomic.AddInt32(&teardownCount, 1); return nil },
		PoolTimeout: 100 * time.Millisecond,
	})

	first := rm.Acquire()
	require.NoError(t, first.Use(time.Second, func(int) error { return nil }))

	time.Sleep(10 * time.Millisecond)
	second := rm.Acquire()
	require.NoError(t, second.Use(time.Second, func(int) error { return nil }))

	// Check before the second release's own pool timer would fire, to
	// isolate that the *first* release's pending teardown was cancelled
	// by the reacquisition rather than merely not-yet-fired.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&teardownCount), "re-acquisition within the grace window should cancel the pending teardown")
}
