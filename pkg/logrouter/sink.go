package logrouter

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// sink is an append-only file shared by the goroutines writing to it.
// The file is opened lazily and reopened after a failed write.
type sink struct {
	path  string
	file  *os.File
	mutex sync.Mutex
}

func newSink(path string) *sink {
	return &sink{path: path}
}

// Write appends chunk in a single call under the sink lock
func (s *sink) Write(chunk []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.ensureFileOpen(); err != nil {
		return err
	}

	if _, err := s.file.Write(chunk); err != nil {
		s.file.Close()
		s.file = nil
		return errors.NewSinkWriteError("failed to write to log sink", err).WithContext("path", s.path)
	}
	return nil
}

func (s *sink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *sink) ensureFileOpen() error {
	if s.file != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewSinkWriteError("failed to create log directory", err).WithContext("path", dir)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.NewSinkWriteError("failed to open log sink", err).WithContext("path", s.path)
	}

	s.file = file
	return nil
}
