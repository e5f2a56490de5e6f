package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// SignalKind selects how a termination request is delivered
type SignalKind int

const (
	SignalGraceful SignalKind = iota // SIGTERM to the process group
	SignalForce                      // SIGKILL to the process group
)

func (k SignalKind) String() string {
	switch k {
	case SignalGraceful:
		return "graceful"
	case SignalForce:
		return "force"
	default:
		return "unknown"
	}
}

// ExitOutcome describes how a process terminated
type ExitOutcome struct {
	Code     int       // Exit code, -1 when terminated by a signal
	Signal   string    // Terminating signal name, empty for a normal exit
	Err      error     // Wait error not explained by code or signal
	ExitedAt time.Time
}

// Clean reports a zero exit code without signal
func (o ExitOutcome) Clean() bool {
	return o.Code == 0 && o.Signal == "" && o.Err == nil
}

func (o ExitOutcome) String() string {
	switch {
	case o.Signal != "":
		return fmt.Sprintf("signal %s", o.Signal)
	case o.Err != nil:
		return fmt.Sprintf("wait error: %v", o.Err)
	default:
		return fmt.Sprintf("exit code %d", o.Code)
	}
}

// Process is the supervisor's view of one launched program
type Process interface {
	PID() int
	RunID() string
	StartedAt() time.Time
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Done() <-chan struct{}
	Exited() bool
	Outcome() ExitOutcome
	Wait(ctx context.Context) (ExitOutcome, error)
	Signal(kind SignalKind) error
	Terminate(ctx context.Context, grace time.Duration) error
	Close()
}

// Handle wraps one launched OS process. The process is reaped by a single
// background wait; Done is closed once reaping completed.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	runID     string
	startedAt time.Time
	stdout    io.ReadCloser
	stderr    io.ReadCloser

	done    chan struct{}
	outcome ExitOutcome
}

func newHandle(cmd *exec.Cmd, runID string, stdout, stderr *os.File) *Handle {
	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		runID:     runID,
		startedAt: time.Now(),
		stdout:    stdout,
		stderr:    stderr,
		done:      make(chan struct{}),
	}
	go h.reap()
	return h
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.outcome = outcomeFromState(h.cmd.ProcessState, err)
	h.outcome.ExitedAt = time.Now()
	close(h.done)
}

func (h *Handle) PID() int             { return h.pid }
func (h *Handle) RunID() string        { return h.runID }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Stdout returns the read end of the process's standard output pipe
func (h *Handle) Stdout() io.ReadCloser { return h.stdout }

// Stderr returns the read end of the process's standard error pipe
func (h *Handle) Stderr() io.ReadCloser { return h.stderr }

// Done is closed after the process has terminated and been reaped
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has been reaped
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Outcome returns the exit outcome; only meaningful once Done is closed
func (h *Handle) Outcome() ExitOutcome {
	<-h.done
	return h.outcome
}

// Wait blocks until the process terminates or ctx is cancelled
func (h *Handle) Wait(ctx context.Context) (ExitOutcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return ExitOutcome{}, errors.NewCancelledError("wait cancelled", ctx.Err()).WithContext("pid", h.pid)
	}
}

// Signal delivers a termination request to the process group. Signalling a
// process that was already reaped fails with a not-running error.
func (h *Handle) Signal(kind SignalKind) error {
	if h.Exited() {
		return errors.NewNotRunningError("process already exited", nil).WithContext("pid", h.pid)
	}
	if err := sendSignal(h.cmd.Process, kind); err != nil {
		if isProcessGone(err) {
			return errors.NewNotRunningError("process already exited", err).WithContext("pid", h.pid)
		}
		return errors.NewSignalError("failed to signal process", err).
			WithContext("pid", h.pid).WithContext("kind", kind.String())
	}
	return nil
}

// Terminate asks the process to stop, escalating to a forced kill after
// grace. It returns once the process is confirmed reaped. A cancelled ctx
// skips the rest of the grace period but still forces termination.
func (h *Handle) Terminate(ctx context.Context, grace time.Duration) error {
	if h.Exited() {
		return nil
	}

	// A failed graceful request falls through to the forced kill
	_ = h.Signal(SignalGraceful)

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-h.done:
		return nil
	case <-graceTimer.C:
	case <-ctx.Done():
	}

	if err := h.Signal(SignalForce); err != nil && !errors.IsNotRunningError(err) {
		return err
	}

	forceTimer := time.NewTimer(DefaultForceKillTimeout)
	defer forceTimer.Stop()

	select {
	case <-h.done:
		return nil
	case <-forceTimer.C:
		return errors.NewTimeoutError("process did not terminate even after force termination", nil).WithContext("pid", h.pid)
	}
}

// Close releases the output readers. The log router normally does this once
// it drained both streams.
func (h *Handle) Close() {
	h.stdout.Close()
	h.stderr.Close()
}
