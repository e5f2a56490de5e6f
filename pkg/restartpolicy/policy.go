package restartpolicy

import (
	"fmt"
	"time"
)

const (
	DefaultBaseBackoff   = 1 * time.Second
	DefaultMaxBackoff    = 30 * time.Second
	DefaultFailureWindow = 60 * time.Second
)

// Options are the per-entry restart settings
type Options struct {
	Autorestart    bool          `yaml:"-"`
	MaxMemoryBytes uint64        `yaml:"-"`
	BaseBackoff    time.Duration `yaml:"base_backoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	FailureWindow  time.Duration `yaml:"failure_window,omitempty"`
	MaxRestarts    int           `yaml:"max_restarts,omitempty"` // 0 means unlimited
}

// WithDefaults fills zero durations with the package defaults
func (o Options) WithDefaults() Options {
	if o.BaseBackoff == 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.FailureWindow == 0 {
		o.FailureWindow = DefaultFailureWindow
	}
	return o
}

// Validate checks option consistency
func (o Options) Validate() error {
	if o.BaseBackoff < 0 {
		return fmt.Errorf("base_backoff cannot be negative: %v", o.BaseBackoff)
	}
	if o.MaxBackoff < 0 {
		return fmt.Errorf("max_backoff cannot be negative: %v", o.MaxBackoff)
	}
	if o.FailureWindow < 0 {
		return fmt.Errorf("failure_window cannot be negative: %v", o.FailureWindow)
	}
	if o.MaxBackoff < o.BaseBackoff {
		return fmt.Errorf("max_backoff (%v) cannot be less than base_backoff (%v)", o.MaxBackoff, o.BaseBackoff)
	}
	if o.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts cannot be negative: %d", o.MaxRestarts)
	}
	return nil
}

// ExitKind classifies why a run ended
type ExitKind string

const (
	ExitClean          ExitKind = "clean"
	ExitCrash          ExitKind = "crash"           // Nonzero code or signal
	ExitLaunchFailure  ExitKind = "launch_failure"  // The process never started
	ExitMemoryExceeded ExitKind = "memory_exceeded" // Terminated by the supervisor for exceeding its ceiling
)

// IsCrash reports whether the exit counts toward the failure streak
func (k ExitKind) IsCrash() bool {
	return k != ExitClean
}

// History is the part of a managed process's record the policy looks at
type History struct {
	ConsecutiveFailures int
	LastFailureAt       time.Time // Zero when there was no failure yet
}

// Decision is the outcome of one policy evaluation. ConsecutiveFailures and
// FailureAt are the history values the caller must store.
type Decision struct {
	Restart             bool
	Delay               time.Duration
	ConsecutiveFailures int
	FailureAt           time.Time
	Exhausted           bool // Restart refused because max_restarts was reached
	Reason              string
}

// Decide computes the restart decision for an exit observed at now. It is a
// pure function of its arguments.
func Decide(options Options, history History, exit ExitKind, now time.Time) Decision {
	options = options.WithDefaults()

	if !exit.IsCrash() {
		return Decision{
			Restart:             false,
			ConsecutiveFailures: 0,
			FailureAt:           history.LastFailureAt,
			Reason:              "clean exit",
		}
	}

	streak := history.ConsecutiveFailures
	if !history.LastFailureAt.IsZero() && now.Sub(history.LastFailureAt) > options.FailureWindow {
		streak = 0
	}

	decision := Decision{
		ConsecutiveFailures: streak + 1,
		FailureAt:           now,
	}

	if !options.Autorestart {
		decision.Reason = fmt.Sprintf("%s, autorestart disabled", exit)
		return decision
	}

	if options.MaxRestarts > 0 && decision.ConsecutiveFailures > options.MaxRestarts {
		decision.Exhausted = true
		decision.Reason = fmt.Sprintf("%s, %d consecutive failures exceed max_restarts %d",
			exit, decision.ConsecutiveFailures, options.MaxRestarts)
		return decision
	}

	decision.Restart = true
	decision.Delay = Backoff(options.BaseBackoff, options.MaxBackoff, streak)
	decision.Reason = fmt.Sprintf("%s, restart #%d in %v", exit, decision.ConsecutiveFailures, decision.Delay)
	return decision
}

// Backoff returns min(base * 2^failures, max) without overflowing
func Backoff(base, max time.Duration, failures int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < failures; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
