package session

import (
	"sync"
	"testing"
	"time"

	"idbcore/internal/async"
	"idbcore/internal/coreerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOp is a minimal Operation used across this package's tests: it
// counts deltas produced and terminates after a configured count, or
// immediately upon Cancel.
type fakeOp struct {
	mu        sync.Mutex
	cancelled bool
	emitted   int
	max       int
	completed *async.Future[struct{}]
	resolve   func(struct{})
}

func newFakeOp(max int) *fakeOp {
	f, resolve, _, _ := async.NewFuture[struct{}]()
	return &fakeOp{max: max, completed: f, resolve: resolve}
}

func (f *fakeOp) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cancelled {
		f.cancelled = true
		f.resolve(struct{}{})
	}
}

func (f *fakeOp) Completion() *async.Future[struct{}] { return f.completed }

func pollFakeOp(op *fakeOp, _ string, done *bool) *async.Future[int] {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.cancelled || op.emitted >= op.max {
		*done = true
		return async.Resolved(0)
	}
	op.emitted++
	if op.emitted >= op.max {
		*done = true
	}
	return async.Resolved(op.emitted)
}

func newTestManager(capacity int, expiration time.Duration, max int) *Manager[int, *fakeOp, int] {
	return NewManager(ManagerConfig[int, *fakeOp, int]{
		Create: func(p int) (*fakeOp, error) {
			return newFakeOp(max), nil
		},
		Poll:       pollFakeOp,
		Capacity:   capacity,
		Expiration: expiration,
	})
}

func TestManager_SessionIDsAreUnique(t *testing.T) {
	m := newTestManager(0, 0, 5)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := m.Start(1).Await(time.Second)
		require.NoError(t, err)
		assert.False(t, seen[s.ID()])
		seen[s.ID()] = true
	}
}

func TestManager_CapacityExceeded(t *testing.T) {
	m := newTestManager(1, 0, 5)
	_, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	_, err = m.Start(1).Await(time.Second)
	require.Error(t, err)
	assert.True(t, coreerr.IsKind(err, coreerr.KindPrecondition))
}

func TestManager_ReleasingSessionFreesSlot(t *testing.T) {
	m := newTestManager(1, 0, 5)
	s, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	_, err = s.Terminate().Await(time.Second)
	require.NoError(t, err, "Terminate should free the capacity slot without a manual Remove call")

	_, err = m.Start(1).Await(time.Second)
	require.NoError(t, err, "third start should succeed once a slot is freed")
}

func TestManager_ObtainUpdatesReachingDoneFreesSlot(t *testing.T) {
	m := newTestManager(1, 0, 1)
	s, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	_, err = s.ObtainUpdates().Await(time.Second)
	require.NoError(t, err)
	require.True(t, s.IsTerminal(), "a single-delta operation should go terminal on its own, without Terminate")

	_, err = m.Start(1).Await(time.Second)
	require.NoError(t, err, "reaching done via ObtainUpdates should free the capacity slot, same as Terminate")
}

func TestManager_UnknownAndAmbiguousSession(t *testing.T) {
	m := newTestManager(0, 0, 5)
	_, err := m.Session("does-not-exist").Await(time.Second)
	require.Error(t, err)
	assert.True(t, coreerr.IsKind(err, coreerr.KindNotFound))

	_, err = m.Start(1).Await(time.Second)
	require.NoError(t, err)
	_, err = m.Start(1).Await(time.Second)
	require.NoError(t, err)

	_, err = m.Session("").Await(time.Second)
	require.Error(t, err)
	assert.True(t, coreerr.IsKind(err, coreerr.KindInvalidArgument))
}

func TestSession_TerminateBeforeFirstObtainUpdates(t *testing.T) {
	m := newTestManager(0, 0, 5)
	s, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	delta, err := s.Terminate().Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, delta)
	assert.True(t, s.IsTerminal())
}

func TestManager_ExpirationEvictsUnpolledSession(t *testing.T) {
	m := newTestManager(0, 30*time.Millisecond, 100)
	defer m.Close()

	s, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.IsTerminal()
	}, time.Second, 5*time.Millisecond, "unpolled session should be evicted and terminated after the expiration window")
}

func TestManager_ScenarioCapacityOneRejectsSecondStart(t *testing.T) {
	// Mirrors spec.md §8 scenario 3: capacity=1, second start rejects,
	// third succeeds after the first terminates.
	m := newTestManager(1, 0, 5)

	first, err := m.Start(1).Await(time.Second)
	require.NoError(t, err)

	_, err = m.Start(1).Await(time.Second)
	require.Error(t, err)

	_, err = first.Terminate().Await(time.Second)
	require.NoError(t, err)

	_, err = m.Start(1).Await(time.Second)
	require.NoError(t, err)
}
