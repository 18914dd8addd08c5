//go:build !windows

package commandrouter

import (
	"os/exec"
	"syscall"
)

// configureProcAttr creates the child in its own process group so the
// whole tree can be signalled at once on termination.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup signals the process group rooted at pid, falling
// back to signalling pid alone if the group signal fails.
func signalProcessGroup(pid int, sig int) error {
	if err := syscall.Kill(-pid, syscall.Signal(sig)); err != nil {
		return syscall.Kill(pid, syscall.Signal(sig))
	}
	return nil
}

func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// decomposePlatformStatus extracts {exit code, killing signal, core
// dumped} from the raw wait status (spec §4.5).
func decomposePlatformStatus(exitErr *exec.ExitError) ExitStatus {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitStatus{ExitCode: exitErr.ExitCode()}
	}
	out := ExitStatus{ExitCode: status.ExitStatus()}
	if status.Signaled() {
		out.Signal = int(status.Signal())
		out.CoreDumped = status.CoreDump()
	}
	return out
}
