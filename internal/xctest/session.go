package xctest

import (
	"context"

	"idbcore/internal/async"
)

// RunOutcome is the single delta a test-run session produces: the
// finished report, paired with any error Pipeline.Run returned
// (including a context-cancellation error for a cancelled run). Keeping
// err inside the resolved value rather than rejecting the poll future
// lets Session.Terminate's terminal-marking Then stage always fire
// (async.Then never invokes its transform on a rejected future).
type RunOutcome struct {
	Report *TestReport
	Err    error
}

// RunOperation adapts a Pipeline run into a session.Operation (spec
// §4.3), so `xctest run` can be started, polled, and terminated through
// the generic session manager instead of blocking the CLI goroutine on
// Pipeline.Run directly.
type RunOperation struct {
	cancel context.CancelFunc
	result *async.Future[RunOutcome]
}

// NewRunOperation starts pipeline.Run in the background against a
// context derived from ctx and returns a RunOperation tracking it.
func NewRunOperation(ctx context.Context, pipeline *Pipeline, cfg XCTestConfiguration, reporter Reporter) *RunOperation {
	runCtx, cancel := context.WithCancel(ctx)
	out, resolve, _, _ := async.NewFuture[RunOutcome]()

	go func() {
		report, err := pipeline.Run(runCtx, cfg, reporter)
		resolve(RunOutcome{Report: report, Err: err})
	}()

	return &RunOperation{cancel: cancel, result: out}
}

// Cancel stops the in-flight run.
func (r *RunOperation) Cancel() { r.cancel() }

// Completion resolves once the run has finished, regardless of outcome.
func (r *RunOperation) Completion() *async.Future[struct{}] {
	return async.Then(r.result, func(RunOutcome) (struct{}, error) {
		return struct{}{}, nil
	})
}

// RunPoll is the session.ManagerConfig.Poll function for a RunOperation:
// a test run produces exactly one delta, its finished RunOutcome, once
// Pipeline.Run returns.
func RunPoll(op *RunOperation, sessionID string, done *bool) *async.Future[RunOutcome] {
	*done = true
	return op.result
}
