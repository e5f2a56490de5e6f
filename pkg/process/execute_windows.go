//go:build windows

package process

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
)

func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows has no SIGTERM equivalent for console-less children; both kinds kill
func sendSignal(proc *os.Process, kind SignalKind) error {
	return proc.Kill()
}

func isProcessGone(err error) bool {
	return stderrors.Is(err, os.ErrProcessDone)
}

func outcomeFromState(state *os.ProcessState, waitErr error) ExitOutcome {
	if state == nil {
		return ExitOutcome{Code: -1, Err: waitErr}
	}
	return ExitOutcome{Code: state.ExitCode()}
}
