package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// PIDFileManager keeps one "<name>.pid" file per managed process in a
// single directory. A manager with an empty directory is disabled and all
// operations are no-ops.
type PIDFileManager struct {
	directory string
	logger    logging.Logger
}

func NewPIDFileManager(directory string, logger logging.Logger) *PIDFileManager {
	return &PIDFileManager{
		directory: directory,
		logger:    logger,
	}
}

func (m *PIDFileManager) Enabled() bool {
	return m != nil && m.directory != ""
}

// PIDFilePath returns the PID file path for name
func (m *PIDFileManager) PIDFilePath(name string) string {
	return filepath.Join(m.directory, name+".pid")
}

// WritePIDFile records pid for name. The file is replaced atomically so
// readers never observe a partial value.
func (m *PIDFileManager) WritePIDFile(name string, pid int) error {
	if !m.Enabled() {
		return nil
	}

	pidFilePath := m.PIDFilePath(name)
	if err := ValidatePIDFileDirectory(pidFilePath); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(m.directory, "."+name+".pid-*")
	if err != nil {
		return errors.NewIOError("failed to create PID file", err).WithContext("pid_file", pidFilePath)
	}
	_, writeErr := fmt.Fprintf(tmp, "%d\n", pid)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Chmod(tmp.Name(), 0644)
	}
	if writeErr == nil {
		writeErr = os.Rename(tmp.Name(), pidFilePath)
	}
	if writeErr != nil {
		os.Remove(tmp.Name())
		return errors.NewIOError("failed to write PID file", writeErr).WithContext("pid_file", pidFilePath).WithContext("pid", pid)
	}

	m.logger.Debugf("PID file written, name: %s, pid: %d, path: %s", name, pid, pidFilePath)
	return nil
}

// ReadPIDFile returns the recorded pid for name
func (m *PIDFileManager) ReadPIDFile(name string) (int, error) {
	if !m.Enabled() {
		return 0, errors.NewNotFoundError("PID files are disabled", nil).WithContext("name", name)
	}

	pidFilePath := m.PIDFilePath(name)
	data, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", pidFilePath)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFilePath)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID file content", err).WithContext("pid_file", pidFilePath)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file for name; a missing file is not an error
func (m *PIDFileManager) RemovePIDFile(name string) error {
	if !m.Enabled() {
		return nil
	}

	pidFilePath := m.PIDFilePath(name)
	if err := os.Remove(pidFilePath); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", pidFilePath)
	}

	m.logger.Debugf("PID file removed, name: %s, path: %s", name, pidFilePath)
	return nil
}

// ValidatePIDFileDirectory makes sure the directory of pidFilePath exists
func ValidatePIDFileDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
		}
		return nil
	}
	if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}
	return nil
}
