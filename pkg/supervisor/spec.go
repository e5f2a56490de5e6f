package supervisor

import (
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/restartpolicy"
)

// ProcessSpec describes one manageable program. It is never modified after
// the supervisor is constructed.
type ProcessSpec struct {
	Name           string
	Execution      process.ExecutionConfig
	MaxMemoryBytes uint64 // 0 disables the memory ceiling
	Autorestart    bool
	Restart        restartpolicy.Options
	KillTimeout    time.Duration
	Sinks          logrouter.Sinks
}

// RestartOptions combines the restart settings the policy evaluates
func (s *ProcessSpec) RestartOptions() restartpolicy.Options {
	options := s.Restart
	options.Autorestart = s.Autorestart
	options.MaxMemoryBytes = s.MaxMemoryBytes
	return options.WithDefaults()
}

// ValidateProcessSpec checks a spec before it is registered
func ValidateProcessSpec(spec *ProcessSpec) error {
	if spec == nil {
		return errors.NewValidationError("process spec cannot be nil", nil)
	}
	if err := ValidateProcessName(spec.Name); err != nil {
		return err
	}
	if err := process.ValidateExecutionConfig(spec.Execution); err != nil {
		return errors.NewValidationError("invalid execution configuration", err).WithContext("name", spec.Name)
	}
	if err := spec.Restart.Validate(); err != nil {
		return errors.NewValidationError("invalid restart configuration", err).WithContext("name", spec.Name)
	}
	if spec.KillTimeout < 0 {
		return errors.NewValidationError("kill_timeout cannot be negative", nil).WithContext("name", spec.Name)
	}
	if err := ValidateSinks(spec.Sinks); err != nil {
		return errors.NewValidationError("invalid log sinks", err).WithContext("name", spec.Name)
	}
	return nil
}
