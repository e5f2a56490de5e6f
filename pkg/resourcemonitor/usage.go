package resourcemonitor

import (
	stderrors "errors"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/logging"
)

// Usage is one memory sample of a process
type Usage struct {
	PID       int
	MemoryRSS uint64 // Resident set size in bytes
	Timestamp time.Time
}

// ErrSamplingUnsupported is the cause reported by samplers on platforms
// without a memory source. The monitor stops sampling when it sees it.
var ErrSamplingUnsupported = stderrors.New("memory sampling is not supported on this platform")

// Sampler reads the current usage of a process
type Sampler interface {
	Sample(pid int) (*Usage, error)
}

// NewSampler returns the sampler for the current platform
func NewSampler(logger logging.Logger) Sampler {
	return newPlatformSampler(logger)
}

// SamplerFunc adapts a function to the Sampler interface
type SamplerFunc func(pid int) (*Usage, error)

func (f SamplerFunc) Sample(pid int) (*Usage, error) {
	return f(pid)
}
