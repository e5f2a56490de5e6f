package control

import (
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the result and status messages. Encoders and decoders
// below must only use these.
const (
	fieldResults             = "results"
	fieldProcesses           = "processes"
	fieldName                = "name"
	fieldSuccess             = "success"
	fieldState               = "state"
	fieldError               = "error"
	fieldPID                 = "pid"
	fieldRunID               = "run_id"
	fieldStartedAt           = "started_at"
	fieldUptimeMS            = "uptime_ms"
	fieldRestarts            = "restarts"
	fieldConsecutiveFailures = "consecutive_failures"
	fieldLastExit            = "last_exit"
	fieldMemoryRSS           = "memory_rss"
	fieldNextRestartAt       = "next_restart_at"
	fieldPermanentlyFailed   = "permanently_failed"
	fieldFailureReason       = "failure_reason"
)

// Times travel as RFC3339 strings, durations as milliseconds

func resultsToStruct(results []domain.Result) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(results))
	for _, result := range results {
		list = append(list, map[string]interface{}{
			fieldName:    result.Name,
			fieldSuccess: result.Success,
			fieldState:   string(result.State),
			fieldError:   result.Error,
		})
	}
	return structpb.NewStruct(map[string]interface{}{fieldResults: list})
}

func resultsFromStruct(s *structpb.Struct) []domain.Result {
	values := s.GetFields()[fieldResults].GetListValue().GetValues()
	results := make([]domain.Result, 0, len(values))
	for _, value := range values {
		fields := value.GetStructValue().GetFields()
		results = append(results, domain.Result{
			Name:    fields[fieldName].GetStringValue(),
			Success: fields[fieldSuccess].GetBoolValue(),
			State:   domain.State(fields[fieldState].GetStringValue()),
			Error:   fields[fieldError].GetStringValue(),
		})
	}
	return results
}

func statusToStruct(statuses []domain.ProcessStatus) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(statuses))
	for _, status := range statuses {
		list = append(list, map[string]interface{}{
			fieldName:                status.Name,
			fieldState:               string(status.State),
			fieldPID:                 status.PID,
			fieldRunID:               status.RunID,
			fieldStartedAt:           formatTime(status.StartedAt),
			fieldUptimeMS:            status.Uptime.Milliseconds(),
			fieldRestarts:            status.Restarts,
			fieldConsecutiveFailures: status.ConsecutiveFailures,
			fieldLastExit:            status.LastExit,
			fieldMemoryRSS:           status.MemoryRSS,
			fieldNextRestartAt:       formatTime(status.NextRestartAt),
			fieldPermanentlyFailed:   status.PermanentlyFailed,
			fieldFailureReason:       status.FailureReason,
		})
	}
	return structpb.NewStruct(map[string]interface{}{fieldProcesses: list})
}

func statusFromStruct(s *structpb.Struct) []domain.ProcessStatus {
	values := s.GetFields()[fieldProcesses].GetListValue().GetValues()
	statuses := make([]domain.ProcessStatus, 0, len(values))
	for _, value := range values {
		fields := value.GetStructValue().GetFields()
		statuses = append(statuses, domain.ProcessStatus{
			Name:                fields[fieldName].GetStringValue(),
			State:               domain.State(fields[fieldState].GetStringValue()),
			PID:                 int(fields[fieldPID].GetNumberValue()),
			RunID:               fields[fieldRunID].GetStringValue(),
			StartedAt:           parseTime(fields[fieldStartedAt].GetStringValue()),
			Uptime:              time.Duration(fields[fieldUptimeMS].GetNumberValue()) * time.Millisecond,
			Restarts:            int(fields[fieldRestarts].GetNumberValue()),
			ConsecutiveFailures: int(fields[fieldConsecutiveFailures].GetNumberValue()),
			LastExit:            fields[fieldLastExit].GetStringValue(),
			MemoryRSS:           uint64(fields[fieldMemoryRSS].GetNumberValue()),
			NextRestartAt:       parseTime(fields[fieldNextRestartAt].GetStringValue()),
			PermanentlyFailed:   fields[fieldPermanentlyFailed].GetBoolValue(),
			FailureReason:       fields[fieldFailureReason].GetStringValue(),
		})
	}
	return statuses
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
