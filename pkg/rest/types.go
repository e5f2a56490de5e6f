package rest

import (
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
)

const mimeJson = "application/json; charset=UTF-8"

// Error is the body of every non-2xx response
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ProcessInfo is the JSON view of one managed process
type ProcessInfo struct {
	Name                string       `json:"name"`
	State               domain.State `json:"state"`
	PID                 int          `json:"pid,omitempty"`
	RunID               string       `json:"run_id,omitempty"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	UptimeSeconds       float64      `json:"uptime_seconds"`
	Restarts            int          `json:"restarts"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastExit            string       `json:"last_exit,omitempty"`
	MemoryRSS           uint64       `json:"memory_rss"`
	NextRestartAt       *time.Time   `json:"next_restart_at,omitempty"`
	PermanentlyFailed   bool         `json:"permanently_failed"`
	FailureReason       string       `json:"failure_reason,omitempty"`
}

// ResultInfo is the JSON view of one command result
type ResultInfo struct {
	Name    string       `json:"name"`
	Success bool         `json:"success"`
	State   domain.State `json:"state"`
	Error   string       `json:"error,omitempty"`
}

func newProcessInfo(status domain.ProcessStatus) ProcessInfo {
	return ProcessInfo{
		Name:                status.Name,
		State:               status.State,
		PID:                 status.PID,
		RunID:               status.RunID,
		StartedAt:           optionalTime(status.StartedAt),
		UptimeSeconds:       status.Uptime.Seconds(),
		Restarts:            status.Restarts,
		ConsecutiveFailures: status.ConsecutiveFailures,
		LastExit:            status.LastExit,
		MemoryRSS:           status.MemoryRSS,
		NextRestartAt:       optionalTime(status.NextRestartAt),
		PermanentlyFailed:   status.PermanentlyFailed,
		FailureReason:       status.FailureReason,
	}
}

func newResultInfos(results []domain.Result) []ResultInfo {
	infos := make([]ResultInfo, 0, len(results))
	for _, result := range results {
		infos = append(infos, ResultInfo(result))
	}
	return infos
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
