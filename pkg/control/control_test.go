package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{})               {}
func (l *SimpleLogger) Infof(format string, args ...interface{})                {}
func (l *SimpleLogger) Warnf(format string, args ...interface{})                {}
func (l *SimpleLogger) Errorf(format string, args ...interface{})               {}
func (l *SimpleLogger) LogLevelf(level int, format string, args ...interface{}) {}

type fakeContract struct {
	targets  []string
	results  []domain.Result
	statuses []domain.ProcessStatus
	err      error
}

func (f *fakeContract) Start(ctx context.Context, target string) ([]domain.Result, error) {
	f.targets = append(f.targets, "start:"+target)
	return f.results, f.err
}

func (f *fakeContract) Stop(ctx context.Context, target string) ([]domain.Result, error) {
	f.targets = append(f.targets, "stop:"+target)
	return f.results, f.err
}

func (f *fakeContract) Restart(ctx context.Context, target string) ([]domain.Result, error) {
	f.targets = append(f.targets, "restart:"+target)
	return f.results, f.err
}

func (f *fakeContract) Status(ctx context.Context) ([]domain.ProcessStatus, error) {
	return f.statuses, f.err
}

func setupClient(t *testing.T, handler domain.Contract) domain.Contract {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterGRPCServerHandler(server, handler, &SimpleLogger{})
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCClientGateway(conn, &SimpleLogger{})
}

func TestControl_CommandsRoundTrip(t *testing.T) {
	fake := &fakeContract{
		results: []domain.Result{
			{Name: "watcher", Success: true, State: domain.StateRunning},
			{Name: "scheduler", Success: false, State: domain.StateCrashed, Error: "launch failed: executable not found"},
		},
	}
	client := setupClient(t, fake)
	ctx := context.Background()

	results, err := client.Start(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, fake.results, results)
	assert.True(t, domain.Failed(results))

	_, err = client.Stop(ctx, "watcher")
	require.NoError(t, err)
	_, err = client.Restart(ctx, "scheduler")
	require.NoError(t, err)

	assert.Equal(t, []string{"start:all", "stop:watcher", "restart:scheduler"}, fake.targets)
}

func TestControl_StatusRoundTrip(t *testing.T) {
	startedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeContract{
		statuses: []domain.ProcessStatus{
			{
				Name:                "mcp-server",
				State:               domain.StateRunning,
				PID:                 4242,
				RunID:               "run-1",
				StartedAt:           startedAt,
				Uptime:              90 * time.Second,
				Restarts:            2,
				ConsecutiveFailures: 1,
				LastExit:            "exit code 1",
				MemoryRSS:           512 * 1024 * 1024,
			},
			{
				Name:              "watchdog",
				State:             domain.StateStopped,
				PermanentlyFailed: true,
				FailureReason:     "crash, autorestart disabled",
			},
			{
				Name:                "watcher",
				State:               domain.StateCrashed,
				ConsecutiveFailures: 3,
				NextRestartAt:       startedAt.Add(4 * time.Second),
			},
		},
	}
	client := setupClient(t, fake)

	statuses, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fake.statuses, statuses)
}

func TestStatusToStruct_EncodesEveryField(t *testing.T) {
	encoded, err := statusToStruct([]domain.ProcessStatus{{Name: "mcp-server", State: domain.StateRunning}})
	require.NoError(t, err)

	processes := encoded.GetFields()[fieldProcesses].GetListValue().GetValues()
	require.Len(t, processes, 1)

	var keys []string
	for key := range processes[0].GetStructValue().GetFields() {
		keys = append(keys, key)
	}
	assert.ElementsMatch(t, []string{
		fieldName, fieldState, fieldPID, fieldRunID, fieldStartedAt, fieldUptimeMS, fieldRestarts,
		fieldConsecutiveFailures, fieldLastExit, fieldMemoryRSS, fieldNextRestartAt,
		fieldPermanentlyFailed, fieldFailureReason,
	}, keys)
}

func TestControl_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not_found", errors.NewNotFoundError("unknown process", nil), errors.IsNotFoundError},
		{"validation", errors.NewValidationError("supervisor is not running", nil), errors.IsValidationError},
		{"conflict", errors.NewConflictError("already started", nil), errors.IsConflictError},
		{"internal", errors.NewIOError("disk gone", nil), errors.IsInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupClient(t, &fakeContract{err: tt.err})
			_, err := client.Start(context.Background(), "ghost")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
		})
	}
}

func TestTimeFormatting(t *testing.T) {
	assert.Equal(t, "", formatTime(time.Time{}))
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("not a time").IsZero())

	at := time.Date(2026, 3, 1, 10, 0, 0, 500, time.UTC)
	assert.True(t, at.Equal(parseTime(formatTime(at))))
}
