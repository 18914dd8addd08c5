//go:build windows

package commandrouter

import (
	"os/exec"
	"syscall"
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalProcessGroup ignores sig on Windows, which has no POSIX signal
// model, and always terminates the process outright.
func signalProcessGroup(pid int, sig int) error {
	handle, _, err := procOpenProcess.Call(
		uintptr(processTerminate|processQueryInformation),
		uintptr(0),
		uintptr(pid),
	)
	if handle == 0 {
		return err
	}
	defer procCloseHandle.Call(handle)

	if success, _, err := procTerminateProcess.Call(handle, uintptr(1)); success == 0 {
		return err
	}
	return nil
}

func processExists(pid int) bool {
	handle, _, _ := procOpenProcess.Call(uintptr(processQueryInformation), uintptr(0), uintptr(pid))
	if handle == 0 {
		return false
	}
	procCloseHandle.Call(handle)
	return true
}

func decomposePlatformStatus(exitErr *exec.ExitError) ExitStatus {
	return ExitStatus{ExitCode: exitErr.ExitCode()}
}
