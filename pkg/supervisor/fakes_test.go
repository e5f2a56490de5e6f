package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/resourcemonitor"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a mock implementation of Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

func newMockLogger() *MockLogger {
	logger := &MockLogger{}
	logger.On("LogLevelf", mock.Anything, mock.Anything).Maybe()
	logger.On("Debugf", mock.Anything, mock.Anything).Maybe()
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logger.On("Warnf", mock.Anything, mock.Anything).Maybe()
	logger.On("Errorf", mock.Anything, mock.Anything).Maybe()
	return logger
}

// fakeProcess is a launched process whose exit is driven by the test
type fakeProcess struct {
	name      string
	pid       int
	startedAt time.Time

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	done     chan struct{}
	exitOnce sync.Once
	outcome  process.ExitOutcome

	mutex      sync.Mutex
	terminated int
}

func newFakeProcess(name string, pid int) *fakeProcess {
	p := &fakeProcess{
		name:      name,
		pid:       pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

// exit ends the process with outcome; later calls are ignored
func (p *fakeProcess) exit(outcome process.ExitOutcome) {
	p.exitOnce.Do(func() {
		outcome.ExitedAt = time.Now()
		p.outcome = outcome
		p.stdoutW.Close()
		p.stderrW.Close()
		close(p.done)
	})
}

func (p *fakeProcess) crash(code int) { p.exit(process.ExitOutcome{Code: code}) }

func (p *fakeProcess) terminations() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.terminated
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) RunID() string         { return fmt.Sprintf("run-%d", p.pid) }
func (p *fakeProcess) StartedAt() time.Time  { return p.startedAt }
func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdoutR }
func (p *fakeProcess) Stderr() io.ReadCloser { return p.stderrR }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Outcome() process.ExitOutcome {
	<-p.done
	return p.outcome
}

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) Wait(ctx context.Context) (process.ExitOutcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return process.ExitOutcome{}, errors.NewCancelledError("wait cancelled", ctx.Err())
	}
}

func (p *fakeProcess) Signal(kind process.SignalKind) error {
	if p.Exited() {
		return errors.NewNotRunningError("process already exited", nil)
	}
	return nil
}

func (p *fakeProcess) Terminate(ctx context.Context, grace time.Duration) error {
	p.mutex.Lock()
	p.terminated++
	p.mutex.Unlock()
	p.exit(process.ExitOutcome{Code: -1, Signal: "SIGTERM"})
	return nil
}

func (p *fakeProcess) Close() {
	p.stdoutR.Close()
	p.stderrR.Close()
}

// fakeLauncher hands out fake processes and records launches that happen
// while an earlier run of the same entry is still alive
type fakeLauncher struct {
	mutex      sync.Mutex
	nextPID    int
	failures   map[string]int
	launched   map[string][]*fakeProcess
	attempts   map[string]int
	overlapped int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		nextPID:  1000,
		failures: make(map[string]int),
		launched: make(map[string][]*fakeProcess),
		attempts: make(map[string]int),
	}
}

// failNext makes the next n launches of name fail
func (l *fakeLauncher) failNext(name string, n int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.failures[name] = n
}

func (l *fakeLauncher) Launch(ctx context.Context, name string, execution process.ExecutionConfig) (process.Process, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.attempts[name]++
	for _, previous := range l.launched[name] {
		if !previous.Exited() {
			l.overlapped++
		}
	}

	if l.failures[name] > 0 {
		l.failures[name]--
		return nil, errors.NewLaunchError("executable not found", nil).WithContext("command", execution.Command)
	}

	l.nextPID++
	p := newFakeProcess(name, l.nextPID)
	l.launched[name] = append(l.launched[name], p)
	return p, nil
}

func (l *fakeLauncher) count(name string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.launched[name])
}

func (l *fakeLauncher) attemptCount(name string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.attempts[name]
}

// last returns the most recent process of name, nil when none
func (l *fakeLauncher) last(name string) *fakeProcess {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	processes := l.launched[name]
	if len(processes) == 0 {
		return nil
	}
	return processes[len(processes)-1]
}

func (l *fakeLauncher) overlaps() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.overlapped
}

// fakeClock records every backoff delay and lets the test fire it
type fakeClock struct {
	mutex  sync.Mutex
	delays []time.Duration
	timers []chan time.Time
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	timer := make(chan time.Time, 1)
	c.delays = append(c.delays, d)
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.timers)
}

func (c *fakeClock) recorded() []time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// fireLast expires the most recently requested delay
func (c *fakeClock) fireLast() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timers[len(c.timers)-1] <- time.Now()
}

// fakeSampler reports a fixed RSS per pid
type fakeSampler struct {
	mutex sync.Mutex
	rss   map[int]uint64
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{rss: make(map[int]uint64)}
}

func (s *fakeSampler) set(pid int, rss uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rss[pid] = rss
}

func (s *fakeSampler) Sample(pid int) (*resourcemonitor.Usage, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return &resourcemonitor.Usage{PID: pid, MemoryRSS: s.rss[pid], Timestamp: time.Now()}, nil
}
