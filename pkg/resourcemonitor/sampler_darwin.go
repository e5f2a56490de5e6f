//go:build darwin

package resourcemonitor

import (
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// psSampler asks ps for the RSS, which is reliable across macOS versions
type psSampler struct {
	logger logging.Logger
}

func newPlatformSampler(logger logging.Logger) Sampler {
	return &psSampler{logger: logger}
}

func (s *psSampler) Sample(pid int) (*Usage, error) {
	output, err := exec.Command("ps", "-o", "rss=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil, errors.NewIOError("ps command failed", err).WithContext("pid", pid)
	}

	field := strings.TrimSpace(string(output))
	if field == "" {
		return nil, errors.NewIOError("unexpected ps output format", nil).WithContext("pid", pid)
	}
	rssKB, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		return nil, errors.NewIOError("failed to parse ps rss", err).WithContext("pid", pid)
	}

	return &Usage{
		PID:       pid,
		MemoryRSS: rssKB * 1024,
		Timestamp: time.Now(),
	}, nil
}
