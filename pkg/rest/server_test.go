package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{})               {}
func (l *SimpleLogger) Infof(format string, args ...interface{})                {}
func (l *SimpleLogger) Warnf(format string, args ...interface{})                {}
func (l *SimpleLogger) Errorf(format string, args ...interface{})               {}
func (l *SimpleLogger) LogLevelf(level int, format string, args ...interface{}) {}

type fakeContract struct {
	calls    []string
	statuses []domain.ProcessStatus
	err      error
}

func (f *fakeContract) result(op, target string) ([]domain.Result, error) {
	f.calls = append(f.calls, op+":"+target)
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Result{{Name: target, Success: true, State: domain.StateRunning}}, nil
}

func (f *fakeContract) Start(ctx context.Context, target string) ([]domain.Result, error) {
	return f.result("start", target)
}

func (f *fakeContract) Stop(ctx context.Context, target string) ([]domain.Result, error) {
	return f.result("stop", target)
}

func (f *fakeContract) Restart(ctx context.Context, target string) ([]domain.Result, error) {
	return f.result("restart", target)
}

func (f *fakeContract) Status(ctx context.Context) ([]domain.ProcessStatus, error) {
	return f.statuses, f.err
}

func serve(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListProcesses(t *testing.T) {
	fake := &fakeContract{statuses: []domain.ProcessStatus{
		{Name: "mcp-server", State: domain.StateRunning, PID: 101, StartedAt: time.Now(), Uptime: 3 * time.Second},
		{Name: "watcher", State: domain.StateCrashed, LastExit: "exit code 1", NextRestartAt: time.Now().Add(time.Second)},
	}}
	rec := serve(t, NewHandler(fake, &SimpleLogger{}), "GET", "/processes")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeJson, rec.Header().Get("Content-Type"))

	var infos []ProcessInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "mcp-server", infos[0].Name)
	assert.Equal(t, 101, infos[0].PID)
	assert.Equal(t, 3.0, infos[0].UptimeSeconds)
	assert.Nil(t, infos[0].NextRestartAt)
	assert.Equal(t, domain.StateCrashed, infos[1].State)
	assert.NotNil(t, infos[1].NextRestartAt)
}

func TestHandler_GetProcess(t *testing.T) {
	fake := &fakeContract{statuses: []domain.ProcessStatus{{Name: "scheduler", State: domain.StateStopped}}}
	handler := NewHandler(fake, &SimpleLogger{})

	rec := serve(t, handler, "GET", "/processes/scheduler")
	require.Equal(t, http.StatusOK, rec.Code)
	var info ProcessInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, domain.StateStopped, info.State)

	rec = serve(t, handler, "GET", "/processes/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var e Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, http.StatusNotFound, e.Code)
}

func TestHandler_Commands(t *testing.T) {
	fake := &fakeContract{}
	handler := NewHandler(fake, &SimpleLogger{})

	for _, op := range []string{"start", "stop", "restart"} {
		rec := serve(t, handler, "POST", "/processes/all/"+op)
		require.Equal(t, http.StatusOK, rec.Code, op)
		var results []ResultInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		assert.True(t, results[0].Success)
	}
	assert.Equal(t, []string{"start:all", "stop:all", "restart:all"}, fake.calls)

	rec := serve(t, handler, "GET", "/processes/all/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not_found", errors.NewNotFoundError("unknown process", nil), http.StatusNotFound},
		{"validation", errors.NewValidationError("supervisor is not running", nil), http.StatusBadRequest},
		{"internal", errors.NewInternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewHandler(&fakeContract{err: tt.err}, &SimpleLogger{}), "POST", "/processes/x/stop")
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
