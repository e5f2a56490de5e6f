//go:build linux

package resourcemonitor

import (
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/prometheus/procfs"
)

// procfsSampler reads /proc/<pid>/stat
type procfsSampler struct {
	fs     procfs.FS
	err    error
	logger logging.Logger
}

func newPlatformSampler(logger logging.Logger) Sampler {
	fs, err := procfs.NewDefaultFS()
	return &procfsSampler{fs: fs, err: err, logger: logger}
}

func (s *procfsSampler) Sample(pid int) (*Usage, error) {
	if s.err != nil {
		return nil, errors.NewIOError("procfs not available", s.err)
	}

	proc, err := s.fs.Proc(pid)
	if err != nil {
		return nil, errors.NewIOError("failed to open process stats", err).WithContext("pid", pid)
	}
	stat, err := proc.Stat()
	if err != nil {
		return nil, errors.NewIOError("failed to read process stat", err).WithContext("pid", pid)
	}

	rss := stat.ResidentMemory()
	if rss < 0 {
		rss = 0
	}
	return &Usage{
		PID:       pid,
		MemoryRSS: uint64(rss),
		Timestamp: time.Now(),
	}, nil
}
