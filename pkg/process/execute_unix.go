//go:build !windows

package process

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setupProcessAttributes starts the child in a new process group so that
// termination reaches the whole process tree
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// sendSignal signals the process group (negative PID)
func sendSignal(proc *os.Process, kind SignalKind) error {
	sig := unix.SIGTERM
	if kind == SignalForce {
		sig = unix.SIGKILL
	}
	return unix.Kill(-proc.Pid, sig)
}

func isProcessGone(err error) bool {
	return stderrors.Is(err, unix.ESRCH) || stderrors.Is(err, os.ErrProcessDone)
}

func outcomeFromState(state *os.ProcessState, waitErr error) ExitOutcome {
	if state == nil {
		return ExitOutcome{Code: -1, Err: waitErr}
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return ExitOutcome{Code: -1, Signal: unix.SignalName(status.Signal())}
	}
	return ExitOutcome{Code: state.ExitCode()}
}
