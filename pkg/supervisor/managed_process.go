package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"
	"github.com/core-tools/hsu-supervisor/pkg/resourcemonitor"
	"github.com/core-tools/hsu-supervisor/pkg/restartpolicy"

	units "github.com/docker/go-units"
)

type commandKind int

const (
	commandStart commandKind = iota
	commandStop
	commandRestart
)

func (k commandKind) String() string {
	switch k {
	case commandStart:
		return "start"
	case commandStop:
		return "stop"
	case commandRestart:
		return "restart"
	default:
		return "unknown"
	}
}

type commandReply struct {
	state domain.State
	err   error
}

type command struct {
	kind  commandKind
	reply chan commandReply
}

// dependencies are shared, read-only collaborators of every task
type dependencies struct {
	launcher        process.Launcher
	router          *logrouter.Router
	sampler         resourcemonitor.Sampler
	pidFiles        *processfile.PIDFileManager
	monitorInterval time.Duration
	drainTimeout    time.Duration
	now             func() time.Time
	after           func(time.Duration) <-chan time.Time
}

// managedProcess is the supervision session of one spec. Everything below
// the channels is owned by the run goroutine; other goroutines talk to it
// through commands and observe it through published snapshots.
type managedProcess struct {
	spec    *ProcessSpec
	deps    *dependencies
	logger  logging.Logger
	publish func(domain.ProcessStatus)

	commands chan command
	usage    chan resourcemonitor.Usage
	finished chan struct{}

	state             domain.State
	handle            process.Process
	session           *logrouter.Session
	monitor           *resourcemonitor.Monitor
	history           restartpolicy.History
	pendingExit       restartpolicy.ExitKind
	restarts          int
	lastExit          string
	lastMemory        uint64
	nextRestartAt     time.Time
	permanentlyFailed bool
	failureReason     string
}

func newManagedProcess(spec *ProcessSpec, deps *dependencies, publish func(domain.ProcessStatus), logger logging.Logger) *managedProcess {
	return &managedProcess{
		spec:     spec,
		deps:     deps,
		logger:   logger,
		publish:  publish,
		commands: make(chan command),
		usage:    make(chan resourcemonitor.Usage, 1),
		finished: make(chan struct{}),
		state:    domain.StateStopped,
	}
}

// send delivers an operator command and waits for the task's reply
func (p *managedProcess) send(ctx context.Context, kind commandKind) commandReply {
	cmd := command{kind: kind, reply: make(chan commandReply, 1)}

	select {
	case p.commands <- cmd:
	case <-p.finished:
		return commandReply{state: domain.StateStopped, err: errors.NewConflictError("supervision has ended", nil).WithContext("name", p.spec.Name)}
	case <-ctx.Done():
		return commandReply{err: errors.NewCancelledError(kind.String()+" cancelled", ctx.Err()).WithContext("name", p.spec.Name)}
	}

	select {
	case reply := <-cmd.reply:
		return reply
	case <-ctx.Done():
		return commandReply{err: errors.NewCancelledError(kind.String()+" reply not awaited", ctx.Err()).WithContext("name", p.spec.Name)}
	}
}

// run drives the state machine until ctx is cancelled
func (p *managedProcess) run(ctx context.Context) {
	defer close(p.finished)

	p.publishStatus()
	for {
		var proceed bool
		switch p.state {
		case domain.StateRunning:
			proceed = p.superviseRunning(ctx)
		case domain.StateCrashed:
			proceed = p.handleCrash(ctx)
		default:
			proceed = p.waitForCommand(ctx)
		}
		if !proceed {
			p.shutdown()
			return
		}
	}
}

func (p *managedProcess) waitForCommand(ctx context.Context) bool {
	select {
	case cmd := <-p.commands:
		switch cmd.kind {
		case commandStop:
			// Already stopped
			p.reply(cmd, nil)
		default:
			p.resetForOperatorStart()
			p.reply(cmd, p.launch(ctx))
		}
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *managedProcess) superviseRunning(ctx context.Context) bool {
	select {
	case <-p.handle.Done():
		outcome := p.handle.Outcome()
		p.finishRun(outcome)
		if outcome.Clean() {
			decision := restartpolicy.Decide(p.spec.RestartOptions(), p.history, restartpolicy.ExitClean, p.deps.now())
			p.recordDecision(decision)
			p.logger.Infof("Process exited cleanly")
			p.setState(domain.StateStopped)
			return true
		}
		p.logger.Warnf("Process crashed, outcome: %s", outcome)
		p.pendingExit = restartpolicy.ExitCrash
		p.setState(domain.StateCrashed)
		return true

	case breach := <-p.monitor.Breaches():
		p.logger.Warnf("Memory limit exceeded, terminating, pid: %d, rss: %s, limit: %s",
			breach.PID, units.BytesSize(float64(breach.RSS)), units.BytesSize(float64(breach.Limit)))
		p.lastMemory = breach.RSS
		outcome, confirmed := p.terminate(ctx)
		if !confirmed {
			return false
		}
		p.finishRun(outcome)
		p.lastExit = fmt.Sprintf("memory exceeded (rss %s > %s), %s",
			units.BytesSize(float64(breach.RSS)), units.BytesSize(float64(breach.Limit)), outcome)
		p.pendingExit = restartpolicy.ExitMemoryExceeded
		p.setState(domain.StateCrashed)
		return true

	case usage := <-p.usage:
		p.lastMemory = usage.MemoryRSS
		p.publishStatus()
		return true

	case cmd := <-p.commands:
		switch cmd.kind {
		case commandStart:
			// Already running
			p.reply(cmd, nil)
		case commandStop:
			p.reply(cmd, p.stopRun(ctx))
		case commandRestart:
			if err := p.stopRun(ctx); err != nil {
				p.reply(cmd, err)
				return true
			}
			p.resetForOperatorStart()
			p.reply(cmd, p.launch(ctx))
		}
		return true

	case <-ctx.Done():
		return false
	}
}

// handleCrash consults the restart policy and waits out the backoff delay.
// A stop command during the delay cancels the pending restart.
func (p *managedProcess) handleCrash(ctx context.Context) bool {
	now := p.deps.now()
	decision := restartpolicy.Decide(p.spec.RestartOptions(), p.history, p.pendingExit, now)
	p.recordDecision(decision)

	if !decision.Restart {
		p.permanentlyFailed = true
		p.failureReason = decision.Reason
		p.logger.Errorf("Process will not be restarted, reason: %s", decision.Reason)
		p.setState(domain.StateStopped)
		return true
	}

	p.nextRestartAt = now.Add(decision.Delay)
	p.logger.Warnf("Restart scheduled, delay: %v, consecutive_failures: %d", decision.Delay, decision.ConsecutiveFailures)
	p.publishStatus()

	timer := p.deps.after(decision.Delay)
	select {
	case <-timer:
		p.nextRestartAt = time.Time{}
		p.restarts++
		// A failed relaunch leaves the entry crashed for the next decision
		_ = p.launch(ctx)
		return true

	case cmd := <-p.commands:
		p.nextRestartAt = time.Time{}
		switch cmd.kind {
		case commandStop:
			p.logger.Infof("Pending restart cancelled")
			p.setState(domain.StateStopped)
			p.reply(cmd, nil)
		default:
			p.resetForOperatorStart()
			p.reply(cmd, p.launch(ctx))
		}
		return true

	case <-ctx.Done():
		p.nextRestartAt = time.Time{}
		return false
	}
}

// launch starts a new run and attaches the log router and resource monitor
func (p *managedProcess) launch(ctx context.Context) error {
	p.setState(domain.StateStarting)

	handle, err := p.deps.launcher.Launch(ctx, p.spec.Name, p.spec.Execution)
	if err != nil {
		p.logger.Errorf("Launch failed, error: %v", err)
		p.lastExit = fmt.Sprintf("launch failed: %v", err)
		p.pendingExit = restartpolicy.ExitLaunchFailure
		p.setState(domain.StateCrashed)
		return err
	}

	p.handle = handle
	if err := p.deps.pidFiles.WritePIDFile(p.spec.Name, handle.PID()); err != nil {
		p.logger.Warnf("Failed to write PID file, error: %v", err)
	}

	p.session = p.deps.router.Attach(p.spec.Name, p.spec.Sinks, handle.Stdout(), handle.Stderr())

	// Drop a sample left over from the previous run
	select {
	case <-p.usage:
	default:
	}
	p.lastMemory = 0

	p.monitor = resourcemonitor.NewMonitor(resourcemonitor.Config{
		Name:        p.spec.Name,
		PID:         handle.PID(),
		MemoryLimit: p.spec.MaxMemoryBytes,
		Interval:    p.deps.monitorInterval,
	}, p.deps.sampler, p.logger)
	p.monitor.SetUsageCallback(p.reportUsage)
	if err := p.monitor.Start(ctx); err != nil {
		p.logger.Warnf("Resource monitor not started, error: %v", err)
	}

	p.logger.Infof("Process running, pid: %d, run_id: %s", handle.PID(), handle.RunID())
	p.setState(domain.StateRunning)
	return nil
}

// reportUsage runs on the monitor goroutine and only forwards the sample
func (p *managedProcess) reportUsage(usage resourcemonitor.Usage) {
	select {
	case p.usage <- usage:
	default:
	}
}

// stopRun terminates the live process and settles in stopped
func (p *managedProcess) stopRun(ctx context.Context) error {
	p.setState(domain.StateStopping)

	outcome, confirmed := p.terminate(ctx)
	if !confirmed {
		return errors.NewCancelledError("stop interrupted before termination was confirmed", ctx.Err()).
			WithContext("name", p.spec.Name)
	}

	p.finishRun(outcome)
	p.logger.Infof("Process stopped, outcome: %s", outcome)
	p.setState(domain.StateStopped)
	return nil
}

// terminate signals the process group and waits until the process is
// reaped. It reports false only when ctx ended first.
func (p *managedProcess) terminate(ctx context.Context) (process.ExitOutcome, bool) {
	// Termination itself is bounded and must not be cut short by ctx
	if err := p.handle.Terminate(context.Background(), p.killTimeout()); err != nil {
		p.logger.Errorf("Termination not confirmed, pid: %d, error: %v", p.handle.PID(), err)
	}

	select {
	case <-p.handle.Done():
		return p.handle.Outcome(), true
	case <-ctx.Done():
		return process.ExitOutcome{}, false
	}
}

// finishRun releases everything attached to the reaped run
func (p *managedProcess) finishRun(outcome process.ExitOutcome) {
	if p.monitor != nil {
		p.monitor.Stop()
	}

	if p.session != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), p.deps.drainTimeout)
		if err := p.session.Wait(drainCtx); err != nil {
			// A descendant still holds the pipes; closing our ends ends the copy
			p.logger.Warnf("Output not drained in %v, closing streams", p.deps.drainTimeout)
			p.handle.Close()
			<-p.session.Done()
		}
		cancel()
	}
	p.handle.Close()

	if err := p.deps.pidFiles.RemovePIDFile(p.spec.Name); err != nil {
		p.logger.Warnf("Failed to remove PID file, error: %v", err)
	}

	p.lastExit = outcome.String()
	p.handle = nil
	p.session = nil
	p.monitor = nil
}

// shutdown runs once the task's context ended
func (p *managedProcess) shutdown() {
	if p.handle != nil {
		p.setState(domain.StateStopping)
		if err := p.handle.Terminate(context.Background(), p.killTimeout()); err != nil {
			p.logger.Errorf("Termination on shutdown not confirmed, pid: %d, error: %v", p.handle.PID(), err)
		}
		if p.handle.Exited() {
			p.finishRun(p.handle.Outcome())
		} else if p.monitor != nil {
			p.monitor.Stop()
		}
	}
	p.nextRestartAt = time.Time{}
	p.setState(domain.StateStopped)
	p.logger.Debugf("Supervision ended")
}

func (p *managedProcess) killTimeout() time.Duration {
	if p.spec.KillTimeout > 0 {
		return p.spec.KillTimeout
	}
	return process.DefaultForceKillTimeout
}

func (p *managedProcess) recordDecision(decision restartpolicy.Decision) {
	p.history = restartpolicy.History{
		ConsecutiveFailures: decision.ConsecutiveFailures,
		LastFailureAt:       decision.FailureAt,
	}
}

// resetForOperatorStart clears failure bookkeeping when an operator asks
// for a start
func (p *managedProcess) resetForOperatorStart() {
	p.permanentlyFailed = false
	p.failureReason = ""
	p.history = restartpolicy.History{}
}

func (p *managedProcess) reply(cmd command, err error) {
	cmd.reply <- commandReply{state: p.state, err: err}
}

func (p *managedProcess) setState(state domain.State) {
	if p.state != state {
		p.logger.Debugf("State transition, from: %s, to: %s", p.state, state)
	}
	p.state = state
	p.publishStatus()
}

func (p *managedProcess) publishStatus() {
	p.publish(p.snapshot())
}

func (p *managedProcess) snapshot() domain.ProcessStatus {
	status := domain.ProcessStatus{
		Name:                p.spec.Name,
		State:               p.state,
		Restarts:            p.restarts,
		ConsecutiveFailures: p.history.ConsecutiveFailures,
		LastExit:            p.lastExit,
		MemoryRSS:           p.lastMemory,
		NextRestartAt:       p.nextRestartAt,
		PermanentlyFailed:   p.permanentlyFailed,
		FailureReason:       p.failureReason,
	}
	if p.handle != nil {
		status.PID = p.handle.PID()
		status.RunID = p.handle.RunID()
		status.StartedAt = p.handle.StartedAt()
	}
	return status
}
