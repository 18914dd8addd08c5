package session

import (
	"sync"
	"time"

	"idbcore/internal/async"
	"idbcore/internal/coreerr"

	"github.com/google/uuid"
)

// ManagerConfig supplies the caller's create/poll contract and the
// manager's capacity/expiration bounds (spec §4.3).
type ManagerConfig[P any, O Operation, D any] struct {
	// Create constructs the operation. Invoked once per start().
	Create func(P) (O, error)
	// Poll returns the next increment for an operation; sets *done when
	// no further increments will appear.
	Poll func(O, sessionID string, done *bool) *async.Future[D]
	// Capacity bounds the number of simultaneously live sessions; zero
	// means unbounded.
	Capacity int
	// Expiration, if positive, evicts a session that has not been
	// polled within the window, invoking Terminate on the underlying
	// operation first.
	Expiration time.Duration
}

// Manager is the delta-update session manager (spec §4.3). All manager
// operations serialize on a single logical lock guarding the session
// table; poll itself runs off-lock (spec §5).
type Manager[P any, O Operation, D any] struct {
	cfg ManagerConfig[P, O, D]

	mu       sync.Mutex
	sessions map[string]*Session[O, D]
	allIDs   map[string]bool // every id ever minted, never reused even after eviction

	stopEviction chan struct{}
	evictionOnce sync.Once
}

// NewManager constructs a Manager and, if Expiration is configured,
// starts its background eviction sweep.
func NewManager[P any, O Operation, D any](cfg ManagerConfig[P, O, D]) *Manager[P, O, D] {
	m := &Manager[P, O, D]{
		cfg:          cfg,
		sessions:     make(map[string]*Session[O, D]),
		allIDs:       make(map[string]bool),
		stopEviction: make(chan struct{}),
	}
	if cfg.Expiration > 0 {
		go m.evictionLoop()
	}
	return m
}

// Start creates the operation, allocates a unique id, and stores the
// session. Rejects with KindPrecondition-wrapped CapacityExceeded once
// the live-session count reaches Capacity.
func (m *Manager[P, O, D]) Start(p P) *async.Future[*Session[O, D]] {
	m.mu.Lock()
	if m.cfg.Capacity > 0 && len(m.sessions) >= m.cfg.Capacity {
		m.mu.Unlock()
		return async.Rejected[*Session[O, D]](coreerr.New(coreerr.KindPrecondition, "session.Manager.Start",
			"CapacityExceeded: %d sessions already live", len(m.sessions)))
	}
	m.mu.Unlock()

	out, resolve, reject, _ := async.NewFuture[*Session[O, D]]()
	go func() {
		op, err := m.cfg.Create(p)
		if err != nil {
			reject(coreerr.Wrap(coreerr.KindPrecondition, "session.Manager.Start", err, "create failed"))
			return
		}

		id := m.newUniqueID()
		now := time.Now()
		s := &Session[O, D]{id: id, op: op, createdAt: now, lastAccess: now, poll: m.cfg.Poll}
		s.release = func() { m.Remove(id) }

		m.mu.Lock()
		// Re-check capacity: a burst of concurrent Start calls could
		// have raced past the earlier check.
		if m.cfg.Capacity > 0 && len(m.sessions) >= m.cfg.Capacity {
			m.mu.Unlock()
			op.Cancel()
			reject(coreerr.New(coreerr.KindPrecondition, "session.Manager.Start", "CapacityExceeded: %d sessions already live", len(m.sessions)))
			return
		}
		m.sessions[id] = s
		m.mu.Unlock()

		resolve(s)
	}()
	return out
}

// newUniqueID mints an id that has never been issued by this manager,
// even if it was since evicted (spec §3 invariant: session ids are
// process-lifetime unique).
func (m *Manager[P, O, D]) newUniqueID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		id := uuid.NewString()
		if !m.allIDs[id] {
			m.allIDs[id] = true
			return id
		}
	}
}

// Session retrieves a session by id. If id is empty and exactly one
// session is active, that session is returned; otherwise AmbiguousSession
// or UnknownSession.
func (m *Manager[P, O, D]) Session(id string) *async.Future[*Session[O, D]] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		switch len(m.sessions) {
		case 0:
			return async.Rejected[*Session[O, D]](coreerr.New(coreerr.KindNotFound, "session.Manager.Session", "UnknownSession: no active sessions"))
		case 1:
			for _, s := range m.sessions {
				return async.Resolved(s)
			}
		default:
			return async.Rejected[*Session[O, D]](coreerr.New(coreerr.KindInvalidArgument, "session.Manager.Session", "AmbiguousSession: %d active sessions", len(m.sessions)))
		}
	}

	s, ok := m.sessions[id]
	if !ok {
		return async.Rejected[*Session[O, D]](coreerr.New(coreerr.KindNotFound, "session.Manager.Session", "UnknownSession: %s", id))
	}
	return async.Resolved(s)
}

// Remove drops a session from the table, freeing the capacity slot it
// held. Session.Terminate calls this automatically once an operation
// goes terminal; callers only need it directly to evict a session table
// entry without driving the operation's own Terminate path.
func (m *Manager[P, O, D]) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of currently live (non-evicted) sessions.
func (m *Manager[P, O, D]) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the background eviction sweep, if running.
func (m *Manager[P, O, D]) Close() {
	m.evictionOnce.Do(func() { close(m.stopEviction) })
}

func (m *Manager[P, O, D]) evictionLoop() {
	ticker := time.NewTicker(minTick(m.cfg.Expiration))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepExpired()
		case <-m.stopEviction:
			return
		}
	}
}

func (m *Manager[P, O, D]) sweepExpired() {
	now := time.Now()
	var expired []*Session[O, D]

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.IsTerminal() {
			continue
		}
		if now.Sub(s.LastAccess()) >= m.cfg.Expiration {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Terminate()
	}
}

func minTick(expiration time.Duration) time.Duration {
	tick := expiration / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return tick
}
