package crashlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idbcore/internal/session"
)

func TestTailOperation_PollResolvesOnNewCrash(t *testing.T) {
	dir := t.TempDir()
	store := NewCrashLogStore(dir)
	store.debounce = 10 * time.Millisecond
	require.NoError(t, store.Start())
	defer store.Stop()

	mgr := session.NewManager(session.ManagerConfig[Predicate, *TailOperation, []*CrashLog]{
		Create: func(p Predicate) (*TailOperation, error) { return NewTailOperation(store, p), nil },
		Poll:   TailPoll,
	})
	defer mgr.Close()

	sess, err := mgr.Start(ProcessNameIs("MyApp")).Await(time.Second)
	require.NoError(t, err)

	updates := sess.ObtainUpdates()
	writeCrashFile(t, dir, "new.crash", samplePlainText)

	crashes, err := updates.Await(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, crashes, 1)
	assert.Equal(t, "com.example.MyApp", crashes[0].Identifier)
	assert.False(t, sess.IsTerminal())
}

func TestTailOperation_TerminateStopsWatchWithoutCrash(t *testing.T) {
	dir := t.TempDir()
	store := NewCrashLogStore(dir)
	require.NoError(t, store.Start())
	defer store.Stop()

	mgr := session.NewManager(session.ManagerConfig[Predicate, *TailOperation, []*CrashLog]{
		Create: func(p Predicate) (*TailOperation, error) { return NewTailOperation(store, p), nil },
		Poll:   TailPoll,
	})
	defer mgr.Close()

	sess, err := mgr.Start(Any()).Await(time.Second)
	require.NoError(t, err)

	crashes, err := sess.Terminate().Await(2 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, crashes)
	assert.True(t, sess.IsTerminal())
}
