//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	corecontrol "github.com/core-tools/hsu-core/pkg/control"
	coredomain "github.com/core-tools/hsu-core/pkg/domain"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeGRPCPort(t *testing.T) int {
	t.Helper()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	return port
}

func TestRun_ReturnsStartupFailures(t *testing.T) {
	config, err := LoadConfig([]byte(fmt.Sprintf(`
supervisor:
  control:
    grpc_port: %d
    http_address: 127.0.0.1:0
processes:
  - name: sleeper
    command: /bin/sh
    args: [-c, "exec sleep 30"]
    kill_timeout: 500ms
  - name: missing
    command: /nonexistent/definitely-missing
    autorestart: false
`, freeGRPCPort(t))), t.TempDir())
	require.NoError(t, err)

	err = Run(context.Background(), config, RunOptions{RunDuration: 300 * time.Millisecond}, newMockLogger())
	require.Error(t, err)
	assert.True(t, errors.IsLaunchError(err))
	assert.Contains(t, err.Error(), "executable not found")
}

func TestRun_ServesControlUntilContextEnds(t *testing.T) {
	port := freeGRPCPort(t)
	config, err := LoadConfig([]byte(`
processes:
  - name: sleeper
    command: /bin/sh
    args: [-c, "exec sleep 30"]
    kill_timeout: 500ms
`), t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- Run(ctx, config, RunOptions{GRPCPort: port}, newMockLogger())
	}()

	coreLogger := logging.NewCoreLogger(newMockLogger())
	connection, err := corecontrol.NewConnection(corecontrol.ConnectionOptions{AttachPort: port}, coreLogger)
	require.NoError(t, err)
	require.NoError(t, coredomain.RetryPing(ctx, corecontrol.NewGRPCClientGateway(connection.GRPC(), coreLogger),
		coredomain.RetryPingOptions{RetryAttempts: 20, RetryInterval: 100 * time.Millisecond}, coreLogger))

	client := control.NewGRPCClientGateway(connection.GRPC(), newMockLogger())
	require.Eventually(t, func() bool {
		statuses, err := client.Status(ctx)
		return err == nil && len(statuses) == 1 && statuses[0].State == domain.StateRunning
	}, 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_InvalidConfig(t *testing.T) {
	config, err := LoadConfig([]byte("processes:\n  - {name: a}\n"), t.TempDir())
	require.NoError(t, err)

	err = Run(context.Background(), config, RunOptions{}, newMockLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
