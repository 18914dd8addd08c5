package crashlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"idbcore/internal/async"
	"idbcore/pkg/logging"
)

var log = logging.NewNamed("crashlog")

// waiter is a pending nextCrashLogForPredicate call: it is resolved the
// first time an ingested crash log satisfies predicate.
type waiter struct {
	predicate Predicate
	resolve   func(*CrashLog)
}

// CrashLogStore watches a directory for newly-written crash reports,
// parses each one (concatenated-JSON tried first, falling back to
// plain text, per spec §4.6's detection-order invariant), and serves
// predicate-matched retrieval to any number of subscribers. Grounded on
// the teacher's internal/reconciler/filesystem_detector.go for the
// fsnotify-plus-debounce ingest loop, restructured as a single-producer/
// many-consumer fan-out rather than a change-event channel: insertion
// happens under the store's mutex, notification of blocked waiters
// happens off-lock (spec §5).
type CrashLogStore struct {
	mu      sync.Mutex
	dir     string
	logs    []*CrashLog
	waiters []*waiter

	watcher *fsnotify.Watcher
	stop    chan struct{}
	stopOne sync.Once

	debounce      time.Duration
	pendingTimers map[string]*time.Timer
}

// NewCrashLogStore constructs a store rooted at dir. Call Start to begin
// watching; the directory is created if absent.
func NewCrashLogStore(dir string) *CrashLogStore {
	return &CrashLogStore{
		dir:           dir,
		stop:          make(chan struct{}),
		debounce:      300 * time.Millisecond,
		pendingTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching dir for new or rewritten crash reports. It
// first ingests whatever is already present, then watches for changes.
func (s *CrashLogStore) Start() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	if entries, err := os.ReadDir(s.dir); err == nil {
		// Existing crash reports are independent files; parsing them
		// concurrently keeps Start responsive on a directory that has
		// accumulated a long history.
		var g errgroup.Group
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(s.dir, e.Name())
			g.Go(func() error {
				s.ingest(path)
				return nil
			})
		}
		g.Wait()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher

	go s.loop()
	log.Info("watching %s for crash reports", s.dir)
	return nil
}

// Stop halts the directory watch. Safe to call more than once.
func (s *CrashLogStore) Stop() {
	s.stopOne.Do(func() {
		close(s.stop)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

func (s *CrashLogStore) loop() {
	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.debounced(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Error(err, "crash log watcher error")
		}
	}
}

// debounced coalesces rapid successive writes to the same path into a
// single ingest, matching the teacher's debounce pattern.
func (s *CrashLogStore) debounced(path string) {
	s.mu.Lock()
	if t, ok := s.pendingTimers[path]; ok {
		t.Stop()
	}
	s.pendingTimers[path] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.pendingTimers, path)
		s.mu.Unlock()
		s.ingest(path)
	})
	s.mu.Unlock()
}

// ingest parses path and adds it to the store, notifying any waiter
// whose predicate it satisfies. Unreadable or empty files are skipped
// silently; unparseable files are logged and skipped. Neither fails the
// watch loop.
func (s *CrashLogStore) ingest(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if len(raw) == 0 {
		return
	}

	c, err := parseDetected(string(raw))
	if err != nil {
		log.Warn("failed to parse crash report %s: %v", path, err)
		return
	}

	var notify []func(*CrashLog)
	s.mu.Lock()
	s.logs = append(s.logs, c)
	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.predicate(c) {
			notify = append(notify, w.resolve)
		} else {
			remaining = append(remaining, w)
		}
	}
	s.waiters = remaining
	s.mu.Unlock()

	for _, resolve := range notify {
		resolve(c)
	}
}

// parseDetected tries the concatenated-JSON parser when the trimmed
// text starts with '{', and falls back to plain text otherwise or when
// the JSON parse fails.
func parseDetected(raw string) (*CrashLog, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		if c, err := ParseConcatenatedJSON(raw); err == nil {
			return c, nil
		}
	}
	return ParsePlainText(raw)
}

// Crashes returns every currently-stored crash log matching predicate.
func (s *CrashLogStore) Crashes(predicate Predicate) []*CrashLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*CrashLog
	for _, c := range s.logs {
		if predicate(c) {
			out = append(out, c)
		}
	}
	return out
}

// NextCrashLogForPredicate resolves with the next crash log ingested
// that satisfies predicate. If a matching crash is already stored, it
// resolves immediately with the most recent match.
func (s *CrashLogStore) NextCrashLogForPredicate(predicate Predicate) *async.Future[*CrashLog] {
	s.mu.Lock()
	for i := len(s.logs) - 1; i >= 0; i-- {
		if predicate(s.logs[i]) {
			match := s.logs[i]
			s.mu.Unlock()
			return async.Resolved(match)
		}
	}
	out, resolve, _, _ := async.NewFuture[*CrashLog]()
	s.waiters = append(s.waiters, &waiter{predicate: predicate, resolve: resolve})
	s.mu.Unlock()
	return out
}

// PruneCrashes removes every stored crash log matching predicate from
// the in-memory store, returning the number removed. The crash report
// files on disk are left in place.
func (s *CrashLogStore) PruneCrashes(predicate Predicate) int {
	s.mu.Lock()
	var kept []*CrashLog
	removed := 0
	for _, c := range s.logs {
		if predicate(c) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.logs = kept
	s.mu.Unlock()
	return removed
}
