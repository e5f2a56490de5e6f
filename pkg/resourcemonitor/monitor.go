package resourcemonitor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/processstate"
)

const DefaultInterval = 10 * time.Second

// Config selects the process a Monitor watches
type Config struct {
	Name        string
	PID         int
	MemoryLimit uint64 // Bytes, 0 disables breach detection
	Interval    time.Duration
}

// Breach reports a sample above the memory limit
type Breach struct {
	Name  string
	PID   int
	RSS   uint64
	Limit uint64
	At    time.Time
}

// UsageCallback receives every successful sample
type UsageCallback func(usage Usage)

// Monitor samples one live process on a fixed interval. It only reads the
// process identifier; breaches are reported, never acted upon.
type Monitor struct {
	config  Config
	sampler Sampler
	logger  logging.Logger

	// Overridable in tests
	isRunning func(pid int) (bool, error)

	breaches      chan Breach
	usageCallback UsageCallback

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mutex     sync.RWMutex
	isStarted bool
	lastUsage *Usage
}

func NewMonitor(config Config, sampler Sampler, logger logging.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Monitor{
		config:    config,
		sampler:   sampler,
		logger:    logger,
		isRunning: processstate.IsProcessRunning,
		breaches:  make(chan Breach, 1),
	}
}

// Breaches delivers at most one breach; the monitor stops sampling after it
func (m *Monitor) Breaches() <-chan Breach {
	return m.breaches
}

// SetUsageCallback must be called before Start
func (m *Monitor) SetUsageCallback(callback UsageCallback) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.usageCallback = callback
}

// LastUsage returns the most recent successful sample
func (m *Monitor) LastUsage() (Usage, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.lastUsage == nil {
		return Usage{}, false
	}
	return *m.lastUsage, true
}

// Start launches the sampling loop
func (m *Monitor) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.isStarted {
		return errors.NewConflictError("resource monitor is already running", nil).WithContext("pid", m.config.PID)
	}
	if m.config.PID <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", m.config.PID)
	}

	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	m.isStarted = true

	m.logger.Debugf("Starting resource monitoring, name: %s, pid: %d, interval: %v, limit: %d",
		m.config.Name, m.config.PID, m.config.Interval, m.config.MemoryLimit)

	m.wg.Add(1)
	go m.monitorLoop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for it to finish. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()

	m.logger.Debugf("Resource monitoring stopped, name: %s, pid: %d", m.config.Name, m.config.PID)
}

func (m *Monitor) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			breach, breached, stop := m.collectUsage()
			if breached {
				m.breaches <- breach
				return
			}
			if stop {
				return
			}
		}
	}
}

// collectUsage takes one sample and reports whether it breached the limit
// and whether sampling should stop
func (m *Monitor) collectUsage() (Breach, bool, bool) {
	usage, err := m.sampler.Sample(m.config.PID)
	if err != nil {
		if stderrors.Is(err, ErrSamplingUnsupported) {
			m.logger.Warnf("Memory ceiling not enforced, name: %s, error: %v", m.config.Name, err)
			return Breach{}, false, true
		}
		// A vanished process is reconciled by the exit wait
		if running, _ := m.isRunning(m.config.PID); !running {
			m.logger.Debugf("Process gone while sampling, name: %s, pid: %d", m.config.Name, m.config.PID)
			return Breach{}, false, false
		}
		m.logger.Warnf("Failed to sample memory, name: %s, pid: %d, error: %v", m.config.Name, m.config.PID, err)
		return Breach{}, false, false
	}

	m.mutex.Lock()
	m.lastUsage = usage
	callback := m.usageCallback
	m.mutex.Unlock()

	if callback != nil {
		callback(*usage)
	}

	if m.config.MemoryLimit == 0 || usage.MemoryRSS <= m.config.MemoryLimit {
		return Breach{}, false, false
	}

	m.logger.Warnf("Memory limit exceeded, name: %s, pid: %d, rss: %d, limit: %d",
		m.config.Name, m.config.PID, usage.MemoryRSS, m.config.MemoryLimit)

	return Breach{
		Name:  m.config.Name,
		PID:   m.config.PID,
		RSS:   usage.MemoryRSS,
		Limit: m.config.MemoryLimit,
		At:    usage.Timestamp,
	}, true, false
}
