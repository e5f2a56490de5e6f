package process

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/google/uuid"
)

// ExecutionConfig describes how to launch one managed program
type ExecutionConfig struct {
	Command          string            `yaml:"command"`
	Args             []string          `yaml:"args,omitempty"`
	WorkingDirectory string            `yaml:"cwd,omitempty"`
	Environment      map[string]string `yaml:"env,omitempty"` // Merged over the inherited environment
}

// Launcher starts OS processes for an execution config
type Launcher interface {
	Launch(ctx context.Context, name string, execution ExecutionConfig) (Process, error)
}

// StdLauncher launches processes with os/exec
type StdLauncher struct {
	logger logging.Logger
}

func NewStdLauncher(logger logging.Logger) *StdLauncher {
	return &StdLauncher{logger: logger}
}

// Launch starts the process in its own process group with fresh stdout and
// stderr pipes. The caller owns the returned handle's output readers.
func (l *StdLauncher) Launch(ctx context.Context, name string, execution ExecutionConfig) (Process, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil).WithContext("name", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("launch cancelled", err).WithContext("name", name)
	}

	if err := ValidateExecutionConfig(execution); err != nil {
		l.logger.Errorf("Execution configuration validation failed, name: %s, error: %v", name, err)
		return nil, errors.NewLaunchError("invalid execution configuration", err).WithContext("name", name)
	}

	if execution.WorkingDirectory != "" {
		info, err := os.Stat(execution.WorkingDirectory)
		if err != nil {
			return nil, errors.NewLaunchError("working directory not accessible", err).
				WithContext("name", name).WithContext("cwd", execution.WorkingDirectory)
		}
		if !info.IsDir() {
			return nil, errors.NewLaunchError("working directory is not a directory", nil).
				WithContext("name", name).WithContext("cwd", execution.WorkingDirectory)
		}
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.NewIOError("failed to create stdout pipe", err).WithContext("name", name)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, errors.NewIOError("failed to create stderr pipe", err).WithContext("name", name)
	}

	// exec.Command rather than CommandContext: the handle decides when to kill
	cmd := exec.Command(execution.Command, execution.Args...)
	cmd.Dir = execution.WorkingDirectory
	cmd.Env = MergeEnvironment(os.Environ(), execution.Environment)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setupProcessAttributes(cmd)

	l.logger.Debugf("Launching process, name: %s, command: '%s', args: %v, cwd: '%s'",
		name, execution.Command, execution.Args, execution.WorkingDirectory)

	startErr := cmd.Start()

	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, classifyStartError(startErr).WithContext("name", name).WithContext("command", execution.Command)
	}

	handle := newHandle(cmd, uuid.NewString(), stdoutR, stderrR)

	l.logger.Infof("Launched process, name: %s, pid: %d, run_id: %s", name, handle.PID(), handle.RunID())
	return handle, nil
}

func classifyStartError(err error) *errors.DomainError {
	switch {
	case stderrors.Is(err, exec.ErrNotFound), stderrors.Is(err, fs.ErrNotExist):
		return errors.NewLaunchError("executable not found", err)
	case stderrors.Is(err, fs.ErrPermission):
		return errors.NewLaunchError("permission denied", err)
	default:
		return errors.NewLaunchError("failed to start the process", err)
	}
}

// MergeEnvironment overlays overrides on base ("KEY=VALUE" entries). Overridden
// keys keep their original position; new keys are appended in sorted order.
func MergeEnvironment(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))
	for _, entry := range base {
		key := entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			key = entry[:i]
		}
		if value, ok := overrides[key]; ok {
			if !applied[key] {
				merged = append(merged, key+"="+value)
				applied[key] = true
			}
			continue
		}
		merged = append(merged, entry)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		if !applied[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}

// DefaultForceKillTimeout bounds the wait for a process after SIGKILL
const DefaultForceKillTimeout = 5 * time.Second
