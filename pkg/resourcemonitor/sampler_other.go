//go:build !linux && !darwin

package resourcemonitor

import (
	"runtime"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

type unsupportedSampler struct {
	logger logging.Logger
}

func newPlatformSampler(logger logging.Logger) Sampler {
	return &unsupportedSampler{logger: logger}
}

func (s *unsupportedSampler) Sample(pid int) (*Usage, error) {
	return nil, errors.NewInternalError("cannot sample memory", ErrSamplingUnsupported).
		WithContext("os", runtime.GOOS).WithContext("pid", pid)
}
