package commandrouter

import (
	"context"
	"os/exec"
	"time"

	"idbcore/internal/async"
	"idbcore/internal/coreerr"
)

// ExitStatus decomposes a terminated process's raw wait status (spec
// §4.5: statLoc is decomposed into {exit code, killing signal, core
// dumped}).
type ExitStatus struct {
	ExitCode     int
	Signal       int // 0 if the process was not killed by a signal
	CoreDumped   bool
}

// IOConfig describes a process's stdin source and stdout/stderr sinks,
// each drawn from the closed set spec §6 names: dev-null, file-path,
// auto-default, or a DataConsumer.
type IOConfig struct {
	StdinPath  string // empty means dev-null
	Stdout     async.DataConsumer
	Stderr     async.DataConsumer
}

// SpawnMode selects how the child process is created.
type SpawnMode int

const (
	SpawnDefault SpawnMode = iota
	SpawnPosixSpawn
	SpawnLaunchd
)

// SpawnConfig carries everything needed to launch a process (spec §6).
type SpawnConfig struct {
	Path string
	Args []string
	Env  map[string]string
	IO   IOConfig
	Mode SpawnMode
}

// LaunchedProcess is the live handle to a spawned process (spec §4.5):
// its pid, a future resolving to its exit status, and a termination
// method.
type LaunchedProcess struct {
	pid      int
	exit     *async.Future[ExitStatus]
	cmd      *exec.Cmd
	strategy ProcessTerminationStrategy
}

// PID returns the launched process's identifier.
func (p *LaunchedProcess) PID() int { return p.pid }

// Exit resolves once the process has terminated, carrying its decomposed
// exit status.
func (p *LaunchedProcess) Exit() *async.Future[ExitStatus] { return p.exit }

// Terminate applies the process's configured ProcessTerminationStrategy:
// optionally checking the process still exists, sending the configured
// signal, waiting for death up to a grace period, and escalating to
// SIGKILL if it is still alive after the grace period.
func (p *LaunchedProcess) Terminate(ctx context.Context) error {
	return p.strategy.apply(ctx, p)
}

// ProcessTerminationStrategy configures how Terminate behaves (spec
// §4.5): the signal to send and which of check-exists-before-signal,
// wait-for-death, and escalate-to-SIGKILL are enabled.
type ProcessTerminationStrategy struct {
	Signal                  int
	CheckExistsBeforeSignal bool
	WaitForDeath            bool
	EscalateToSIGKILL       bool
	GracePeriod             time.Duration
}

// DefaultTerminationStrategy sends SIGTERM, waits for death up to 5s,
// and escalates to SIGKILL.
func DefaultTerminationStrategy() ProcessTerminationStrategy {
	return ProcessTerminationStrategy{
		Signal:            15, // SIGTERM
		WaitForDeath:      true,
		EscalateToSIGKILL: true,
		GracePeriod:       5 * time.Second,
	}
}

func (s ProcessTerminationStrategy) apply(ctx context.Context, p *LaunchedProcess) error {
	if s.CheckExistsBeforeSignal && !processExists(p.pid) {
		return nil
	}
	if err := signalProcessGroup(p.pid, s.Signal); err != nil {
		return coreerr.Wrap(coreerr.KindPrecondition, "commandrouter.Terminate", err, "failed to signal pid %d", p.pid)
	}
	if !s.WaitForDeath {
		return nil
	}

	deadline := time.Now().Add(s.GracePeriod)
	for time.Now().Before(deadline) {
		if _, err := p.exit.Await(10 * time.Millisecond); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return coreerr.Wrap(coreerr.KindCancelled, "commandrouter.Terminate", ctx.Err(), "cancelled while waiting for pid %d to exit", p.pid)
		default:
		}
	}

	if !s.EscalateToSIGKILL {
		return coreerr.New(coreerr.KindTimeout, "commandrouter.Terminate", "pid %d did not exit within grace period", p.pid)
	}
	if err := signalProcessGroup(p.pid, 9); err != nil {
		return coreerr.Wrap(coreerr.KindPrecondition, "commandrouter.Terminate", err, "failed to SIGKILL pid %d", p.pid)
	}
	_, err := p.exit.Await(s.GracePeriod)
	return err
}

// Spawn launches cfg.Path with the given configuration and returns a
// LaunchedProcess whose Exit future resolves with the decomposed exit
// status once the process terminates.
func Spawn(cfg SpawnConfig, strategy ProcessTerminationStrategy) (*LaunchedProcess, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if cfg.IO.Stdout != nil {
		cmd.Stdout = consumerWriter{cfg.IO.Stdout}
	}
	if cfg.IO.Stderr != nil {
		cmd.Stderr = consumerWriter{cfg.IO.Stderr}
	}
	configureProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "commandrouter.Spawn", err, "failed to start %s", cfg.Path)
	}

	exitFuture, resolve, _, _ := async.NewFuture[ExitStatus]()
	p := &LaunchedProcess{pid: cmd.Process.Pid, exit: exitFuture, cmd: cmd, strategy: strategy}

	go func() {
		err := cmd.Wait()
		if cfg.IO.Stdout != nil {
			cfg.IO.Stdout.EOF()
		}
		if cfg.IO.Stderr != nil {
			cfg.IO.Stderr.EOF()
		}
		resolve(decomposeExitError(err))
	}()

	return p, nil
}

// decomposeExitError turns the error returned by cmd.Wait() into the
// {exit code, killing signal, core dumped} triple spec §4.5 requires.
func decomposeExitError(err error) ExitStatus {
	if err == nil {
		return ExitStatus{ExitCode: 0}
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return ExitStatus{ExitCode: -1}
	}
	return decomposePlatformStatus(exitErr)
}

// consumerWriter adapts an async.DataConsumer to io.Writer so it can be
// plugged directly into exec.Cmd.Stdout/Stderr.
type consumerWriter struct {
	consumer async.DataConsumer
}

func (w consumerWriter) Write(p []byte) (int, error) {
	if err := w.consumer.Consume(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
