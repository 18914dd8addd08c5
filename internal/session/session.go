// Package session implements the delta-update session manager (spec
// §4.3): a generic mechanism turning a long-running operation into a
// resumable, incrementally-pollable session with capacity and expiration
// bounds. Grounded on the teacher's internal/services/registry.go
// (name-keyed table guarded by sync.RWMutex) generalized from a fixed
// Service interface to a caller-supplied create/poll contract, and on
// internal/reconciler/manager.go for the expiration-worker shape.
package session

import (
	"sync"
	"time"

	"idbcore/internal/async"
	"idbcore/internal/coreerr"
)

// Operation is the concrete long-running operation a session wraps: it
// must expose a cancellation handle and a completion future, per spec
// §4.3's "the concrete operation O (carrying a cancellation handle and a
// completion future)".
type Operation interface {
	Cancel()
	Completion() *async.Future[struct{}]
}

// Session is an identified, incrementally-observable operation (spec
// §3). D is the delta type produced by each poll.
type Session[O Operation, D any] struct {
	mu         sync.Mutex
	id         string
	op         O
	createdAt  time.Time
	lastAccess time.Time
	terminal   bool
	poll       func(O, string, *bool) *async.Future[D]
	done       bool
	// release frees the capacity slot this session holds once it goes
	// terminal (spec §4.3: "terminating a session frees its capacity
	// slot"). Set by Manager.Start; nil is safe for sessions constructed
	// outside a Manager, e.g. in tests.
	release func()
}

// ID returns the session's process-lifetime-unique identifier.
func (s *Session[O, D]) ID() string { return s.id }

// CreatedAt returns the session's creation timestamp.
func (s *Session[O, D]) CreatedAt() time.Time { return s.createdAt }

// LastAccess returns the timestamp of the most recent ObtainUpdates or
// Terminate call.
func (s *Session[O, D]) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// IsTerminal reports whether this session has ended, either because
// Terminate completed or because a poll reported the operation done.
func (s *Session[O, D]) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// ObtainUpdates delegates to the manager-supplied poll function,
// returning the accumulated increment since the last call (spec §4.3).
// A poll reporting that no further increments will appear marks the
// session terminal and releases its capacity slot, exactly as Terminate
// does, so a naturally-finished operation (e.g. a single-delta xctest
// run) doesn't need an explicit Terminate call to free its slot.
func (s *Session[O, D]) ObtainUpdates() *async.Future[D] {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return async.Rejected[D](coreerr.New(coreerr.KindPrecondition, "session.ObtainUpdates", "session %s already terminal", s.id))
	}
	s.lastAccess = time.Now()
	op := s.op
	s.mu.Unlock()

	return async.Then(s.poll(op, s.id, &s.done), func(d D) (D, error) {
		if s.done {
			s.mu.Lock()
			s.terminal = true
			release := s.release
			s.mu.Unlock()
			if release != nil {
				release()
			}
		}
		return d, nil
	})
}

// Terminate cancels the underlying operation, drains any pending delta,
// marks the session terminal, releases its capacity slot, and returns
// the final delta. Cancelling a session before the first ObtainUpdates
// call still resolves with whatever the poll function reports for a
// freshly-cancelled operation (spec §8: "resolves the terminate-delta
// with an empty update list and a terminal state" is the poll
// function's responsibility to honor).
func (s *Session[O, D]) Terminate() *async.Future[D] {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		var zero D
		return async.Resolved(zero)
	}
	s.lastAccess = time.Now()
	op := s.op
	s.mu.Unlock()

	op.Cancel()
	final := s.poll(op, s.id, &s.done)
	return async.Then(final, func(d D) (D, error) {
		s.mu.Lock()
		s.terminal = true
		release := s.release
		s.mu.Unlock()
		if release != nil {
			release()
		}
		return d, nil
	})
}
