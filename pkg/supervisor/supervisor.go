package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"
	"github.com/core-tools/hsu-supervisor/pkg/resourcemonitor"
)

const DefaultDrainTimeout = 2 * time.Second

// SupervisorState represents the lifecycle of the supervisor itself
type SupervisorState string

const (
	SupervisorStateNotStarted SupervisorState = "not_started"
	SupervisorStateRunning    SupervisorState = "running"
	SupervisorStateStopping   SupervisorState = "stopping"
	SupervisorStateStopped    SupervisorState = "stopped"
)

// Options carries the collaborators of a Supervisor. Zero values select the
// production implementations.
type Options struct {
	Launcher        process.Launcher
	Sampler         resourcemonitor.Sampler
	Router          *logrouter.Router
	PIDFiles        *processfile.PIDFileManager
	MonitorInterval time.Duration
	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration

	// Clock hooks
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time
}

// Supervisor owns the registry of managed processes. Each entry is driven
// by its own task; the status table is written only by the coordinating
// loop, which receives every snapshot the tasks publish.
type Supervisor struct {
	options Options
	logger  logging.Logger
	names   []string
	entries map[string]*managedProcess

	mutex  sync.Mutex
	state  SupervisorState
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	statusMutex sync.RWMutex
	statusTable map[string]domain.ProcessStatus

	events          chan statusEvent
	quit            chan struct{}
	coordinatorDone chan struct{}
}

func NewSupervisor(specs []*ProcessSpec, options Options, logger logging.Logger) (*Supervisor, error) {
	options = setOptionsDefaults(options, logger)

	s := &Supervisor{
		options:         options,
		logger:          logger,
		names:           make([]string, 0, len(specs)),
		entries:         make(map[string]*managedProcess, len(specs)),
		state:           SupervisorStateNotStarted,
		statusTable:     make(map[string]domain.ProcessStatus, len(specs)),
		events:          make(chan statusEvent),
		quit:            make(chan struct{}),
		coordinatorDone: make(chan struct{}),
	}

	deps := &dependencies{
		launcher:        options.Launcher,
		router:          options.Router,
		sampler:         options.Sampler,
		pidFiles:        options.PIDFiles,
		monitorInterval: options.MonitorInterval,
		drainTimeout:    options.DrainTimeout,
		now:             options.Now,
		after:           options.After,
	}

	for _, spec := range specs {
		if err := ValidateProcessSpec(spec); err != nil {
			return nil, err
		}
		if _, exists := s.entries[spec.Name]; exists {
			return nil, errors.NewConflictError("process already registered", nil).WithContext("name", spec.Name)
		}

		entryLogger := logging.WithPrefix(logger, "process: "+spec.Name+", ")
		s.entries[spec.Name] = newManagedProcess(spec, deps, s.publish, entryLogger)
		s.names = append(s.names, spec.Name)
		s.statusTable[spec.Name] = domain.ProcessStatus{Name: spec.Name, State: domain.StateStopped}

		logger.Infof("Registered process, name: %s, command: %s, autorestart: %t, max_memory: %d",
			spec.Name, spec.Execution.Command, spec.Autorestart, spec.MaxMemoryBytes)
	}

	return s, nil
}

func setOptionsDefaults(options Options, logger logging.Logger) Options {
	if options.Launcher == nil {
		options.Launcher = process.NewStdLauncher(logger)
	}
	if options.Sampler == nil {
		options.Sampler = resourcemonitor.NewSampler(logger)
	}
	if options.Router == nil {
		options.Router = logrouter.NewRouter(logger)
	}
	if options.PIDFiles == nil {
		options.PIDFiles = processfile.NewPIDFileManager("", logger)
	}
	if options.MonitorInterval <= 0 {
		options.MonitorInterval = resourcemonitor.DefaultInterval
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}
	if options.DrainTimeout <= 0 {
		options.DrainTimeout = DefaultDrainTimeout
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.After == nil {
		options.After = time.After
	}
	return options
}

// Start launches the coordinating loop and one task per entry. Entries stay
// stopped until a start command arrives.
func (s *Supervisor) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != SupervisorStateNotStarted {
		return errors.NewConflictError(fmt.Sprintf("supervisor cannot start in state %s", s.state), nil)
	}

	s.logger.Infof("Starting supervisor, processes: %d", len(s.names))

	go s.coordinate()

	// Tasks outlive any caller context; only Shutdown ends them
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, name := range s.names {
		entry := s.entries[name]
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			entry.run(ctx)
		}()
	}

	s.state = SupervisorStateRunning
	s.logger.Infof("Supervisor started")
	return nil
}

// Shutdown stops every entry and waits for all tasks, bounded by the
// shutdown timeout and ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mutex.Lock()
	switch s.state {
	case SupervisorStateStopped:
		s.mutex.Unlock()
		return nil
	case SupervisorStateRunning:
	default:
		state := s.state
		s.mutex.Unlock()
		return errors.NewConflictError(fmt.Sprintf("supervisor cannot shut down in state %s", state), nil)
	}
	s.state = SupervisorStateStopping
	cancel := s.cancel
	s.mutex.Unlock()

	s.logger.Infof("Stopping supervisor...")
	cancel()

	tasksDone := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(tasksDone)
	}()

	timer := time.NewTimer(s.options.ShutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-tasksDone:
	case <-timer.C:
		err = errors.NewTimeoutError("processes did not stop within the shutdown timeout", nil).
			WithContext("timeout", s.options.ShutdownTimeout.String())
	case <-ctx.Done():
		err = errors.NewCancelledError("shutdown wait cancelled", ctx.Err())
	}

	close(s.quit)
	<-s.coordinatorDone

	s.mutex.Lock()
	s.state = SupervisorStateStopped
	s.mutex.Unlock()

	if err != nil {
		s.logger.Errorf("Supervisor stopped with errors: %v", err)
		return err
	}
	s.logger.Infof("Supervisor stopped")
	return nil
}

// GetState returns the supervisor lifecycle state
func (s *Supervisor) GetState() SupervisorState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// StartProcess starts one entry, or every entry for "all"
func (s *Supervisor) StartProcess(ctx context.Context, target string) ([]domain.Result, error) {
	return s.apply(ctx, target, commandStart)
}

// StopProcess stops one entry, or every entry for "all". Stopping a stopped
// entry succeeds.
func (s *Supervisor) StopProcess(ctx context.Context, target string) ([]domain.Result, error) {
	return s.apply(ctx, target, commandStop)
}

// RestartProcess stops and starts again one entry, or every entry for "all"
func (s *Supervisor) RestartProcess(ctx context.Context, target string) ([]domain.Result, error) {
	return s.apply(ctx, target, commandRestart)
}

func (s *Supervisor) apply(ctx context.Context, target string, kind commandKind) ([]domain.Result, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}

	if state := s.GetState(); state != SupervisorStateRunning {
		return nil, errors.NewValidationError(
			fmt.Sprintf("supervisor must be running to %s processes, current state: %s", kind, state),
			nil,
		).WithContext("target", target)
	}

	names, err := s.resolveTarget(target)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Applying %s, target: %s", kind, target)

	// Entries are driven concurrently so a slow stop never delays another
	results := make([]domain.Result, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			reply := s.entries[name].send(ctx, kind)
			results[i] = domain.Result{Name: name, Success: reply.err == nil, State: reply.state}
			if reply.err != nil {
				results[i].Error = reply.err.Error()
				s.logger.Errorf("Failed to %s process, name: %s, error: %v", kind, name, reply.err)
			}
		}(i, name)
	}
	wg.Wait()

	return results, nil
}

func (s *Supervisor) resolveTarget(target string) ([]string, error) {
	if target == "" || target == domain.TargetAll {
		return append([]string(nil), s.names...), nil
	}
	if err := ValidateProcessName(target); err != nil {
		return nil, errors.NewValidationError("invalid process name", err).WithContext("name", target)
	}
	if _, exists := s.entries[target]; !exists {
		return nil, errors.NewNotFoundError("process not found", nil).WithContext("name", target)
	}
	return []string{target}, nil
}

// Status returns a snapshot of every entry in registration order
func (s *Supervisor) Status() []domain.ProcessStatus {
	now := s.options.Now()

	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()

	statuses := make([]domain.ProcessStatus, 0, len(s.names))
	for _, name := range s.names {
		statuses = append(statuses, withUptime(s.statusTable[name], now))
	}
	return statuses
}

// GetProcessStatus returns the snapshot of one entry
func (s *Supervisor) GetProcessStatus(name string) (domain.ProcessStatus, error) {
	if _, exists := s.entries[name]; !exists {
		return domain.ProcessStatus{}, errors.NewNotFoundError("process not found", nil).WithContext("name", name)
	}

	s.statusMutex.RLock()
	status := s.statusTable[name]
	s.statusMutex.RUnlock()

	return withUptime(status, s.options.Now()), nil
}

func withUptime(status domain.ProcessStatus, now time.Time) domain.ProcessStatus {
	if status.State == domain.StateRunning && !status.StartedAt.IsZero() {
		status.Uptime = now.Sub(status.StartedAt)
	}
	return status
}

// statusEvent carries one snapshot; recorded is closed once the status
// table holds it
type statusEvent struct {
	status   domain.ProcessStatus
	recorded chan struct{}
}

// publish hands a snapshot to the coordinating loop and returns after it
// was recorded, so a command reply never precedes its own status
func (s *Supervisor) publish(status domain.ProcessStatus) {
	event := statusEvent{status: status, recorded: make(chan struct{})}
	select {
	case s.events <- event:
	case <-s.quit:
		return
	}
	select {
	case <-event.recorded:
	case <-s.quit:
	}
}

// coordinate is the single writer of the status table
func (s *Supervisor) coordinate() {
	defer close(s.coordinatorDone)

	for {
		select {
		case event := <-s.events:
			s.record(event)
		case <-s.quit:
			for {
				select {
				case event := <-s.events:
					s.record(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) record(event statusEvent) {
	s.statusMutex.Lock()
	s.statusTable[event.status.Name] = event.status
	s.statusMutex.Unlock()
	close(event.recorded)
}
