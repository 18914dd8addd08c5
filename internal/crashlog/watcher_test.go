package crashlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCrashFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestCrashLogStore_IngestsExistingFilesOnStart(t *testing.T) {
	dir := t.TempDir()
	writeCrashFile(t, dir, "existing.crash", samplePlainText)

	s := NewCrashLogStore(dir)
	require.NoError(t, s.Start())
	defer s.Stop()

	matches := s.Crashes(ProcessNameIs("MyApp"))
	require.Len(t, matches, 1)
	assert.Equal(t, 4242, matches[0].ProcessIdentifier)
}

func TestCrashLogStore_DetectsNewlyWrittenCrashFile(t *testing.T) {
	dir := t.TempDir()

	s := NewCrashLogStore(dir)
	s.debounce = 10 * time.Millisecond
	require.NoError(t, s.Start())
	defer s.Stop()

	waiting := s.NextCrashLogForPredicate(ProcessNameIs("MyApp"))

	writeCrashFile(t, dir, "new.crash", samplePlainText)

	c, err := waiting.Await(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "com.example.MyApp", c.Identifier)
}

func TestCrashLogStore_NextCrashLogForPredicateResolvesImmediatelyIfAlreadyMatched(t *testing.T) {
	dir := t.TempDir()
	writeCrashFile(t, dir, "existing.crash", samplePlainText)

	s := NewCrashLogStore(dir)
	require.NoError(t, s.Start())
	defer s.Stop()

	c, err := s.NextCrashLogForPredicate(ProcessNameIs("MyApp")).Await(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "MyApp", c.ProcessName)
}

func TestCrashLogStore_PruneCrashesRemovesMatches(t *testing.T) {
	dir := t.TempDir()
	writeCrashFile(t, dir, "a.crash", samplePlainText)

	s := NewCrashLogStore(dir)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Len(t, s.Crashes(Any()), 1)
	removed := s.PruneCrashes(ProcessNameIs("MyApp"))
	assert.Equal(t, 1, removed)
	assert.Empty(t, s.Crashes(Any()))
}

func TestCrashLogStore_DoesNotMatchUnrelatedPredicate(t *testing.T) {
	dir := t.TempDir()
	writeCrashFile(t, dir, "a.crash", samplePlainText)

	s := NewCrashLogStore(dir)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Empty(t, s.Crashes(ProcessNameIs("SomeOtherApp")))
}
