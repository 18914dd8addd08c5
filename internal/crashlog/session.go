package crashlog

import (
	"sync"

	"idbcore/internal/async"
)

// TailOperation is a session.Operation (spec §4.3) wrapping a live
// predicate watch against a CrashLogStore: each poll resolves with the
// crash logs that matched since the previous poll, and Cancel stops the
// watch without affecting the store itself.
type TailOperation struct {
	store     *CrashLogStore
	predicate Predicate

	once   sync.Once
	doneCh chan struct{}
}

// NewTailOperation constructs a TailOperation watching store for crash
// logs matching predicate.
func NewTailOperation(store *CrashLogStore, predicate Predicate) *TailOperation {
	return &TailOperation{store: store, predicate: predicate, doneCh: make(chan struct{})}
}

// Cancel stops the tail; a poll already in flight resolves with an
// empty delta and done=true.
func (t *TailOperation) Cancel() {
	t.once.Do(func() { close(t.doneCh) })
}

// Completion resolves once Cancel has been called.
func (t *TailOperation) Completion() *async.Future[struct{}] {
	out, resolve, _, _ := async.NewFuture[struct{}]()
	go func() {
		<-t.doneCh
		resolve(struct{}{})
	}()
	return out
}

// TailPoll is the session.ManagerConfig.Poll function for a
// TailOperation: it blocks until either the next matching crash log is
// ingested or the tail is cancelled.
func TailPoll(op *TailOperation, sessionID string, done *bool) *async.Future[[]*CrashLog] {
	select {
	case <-op.doneCh:
		*done = true
		return async.Resolved[[]*CrashLog](nil)
	default:
	}

	next := op.store.NextCrashLogForPredicate(op.predicate)
	out, resolve, reject, _ := async.NewFuture[[]*CrashLog]()
	go func() {
		select {
		case <-next.Done():
			v, err := next.Await(0)
			if err != nil {
				reject(err)
				return
			}
			resolve([]*CrashLog{v})
		case <-op.doneCh:
			*done = true
			resolve(nil)
		}
	}()
	return out
}
