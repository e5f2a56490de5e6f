package domain

import (
	"context"
	"time"
)

// TargetAll addresses every managed process in a start, stop or restart
const TargetAll = "all"

// State is the lifecycle state of one managed process
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateCrashed  State = "crashed"
)

// ProcessStatus is a consistent snapshot of one managed process
type ProcessStatus struct {
	Name                string
	State               State
	PID                 int // Zero unless running
	RunID               string
	StartedAt           time.Time
	Uptime              time.Duration
	Restarts            int // Automatic relaunches since the supervisor started
	ConsecutiveFailures int
	LastExit            string
	MemoryRSS           uint64 // Last sample, bytes
	NextRestartAt       time.Time
	PermanentlyFailed   bool // Stopped because restarts were refused, not by request
	FailureReason       string
}

// Result is the per-process outcome of an operator command
type Result struct {
	Name    string
	Success bool
	State   State
	Error   string
}

// Contract is the operator-facing surface of the supervisor
type Contract interface {
	Start(ctx context.Context, target string) ([]Result, error)
	Stop(ctx context.Context, target string) ([]Result, error)
	Restart(ctx context.Context, target string) ([]Result, error)
	Status(ctx context.Context) ([]ProcessStatus, error)
}

// Failed reports whether any result carries a failure
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Success {
			return true
		}
	}
	return false
}
