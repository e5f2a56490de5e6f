//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
	"github.com/core-tools/hsu-supervisor/pkg/process"
	"github.com/core-tools/hsu-supervisor/pkg/processfile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellSpec(name, script string, dir string) *ProcessSpec {
	return &ProcessSpec{
		Name:        name,
		Execution:   process.ExecutionConfig{Command: "/bin/sh", Args: []string{"-c", script}},
		Autorestart: false,
		KillTimeout: 500 * time.Millisecond,
		Sinks: logrouter.Sinks{
			Stdout:   filepath.Join(dir, name+"-out.log"),
			Stderr:   filepath.Join(dir, name+"-err.log"),
			Combined: filepath.Join(dir, name+"-combined.log"),
		},
	}
}

func newRealSupervisor(t *testing.T, pidDir string, specs ...*ProcessSpec) *Supervisor {
	t.Helper()
	logger := newMockLogger()
	sup, err := NewSupervisor(specs, Options{
		PIDFiles:        processfile.NewPIDFileManager(pidDir, logger),
		MonitorInterval: 20 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, sup.Start())
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	return sup
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSupervisor_RealProcessLogSinks(t *testing.T) {
	dir := t.TempDir()
	sup := newRealSupervisor(t, "", shellSpec("printer", "echo hello; sleep 0.05; echo oops 1>&2; sleep 0.05; echo bye", dir))

	results, err := sup.StartProcess(context.Background(), "printer")
	require.NoError(t, err)
	require.True(t, results[0].Success, results[0].Error)

	require.Eventually(t, func() bool {
		status, _ := sup.GetProcessStatus("printer")
		return status.State == domain.StateStopped && status.LastExit != ""
	}, 5*time.Second, 10*time.Millisecond)

	status, err := sup.GetProcessStatus("printer")
	require.NoError(t, err)
	assert.Equal(t, "exit code 0", status.LastExit)
	assert.False(t, status.PermanentlyFailed)

	assert.Equal(t, "hello\nbye\n", readFile(t, filepath.Join(dir, "printer-out.log")))
	assert.Equal(t, "oops\n", readFile(t, filepath.Join(dir, "printer-err.log")))

	combined := readFile(t, filepath.Join(dir, "printer-combined.log"))
	assert.Equal(t, "hello\noops\nbye\n", combined)
	assert.Less(t, strings.Index(combined, "hello\n"), strings.Index(combined, "oops\n"))
	assert.Less(t, strings.Index(combined, "oops\n"), strings.Index(combined, "bye\n"))

	// A second run appends
	results, err = sup.StartProcess(context.Background(), "printer")
	require.NoError(t, err)
	require.True(t, results[0].Success)
	require.Eventually(t, func() bool {
		return strings.Count(readFile(t, filepath.Join(dir, "printer-out.log")), "hello\n") == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSupervisor_RealProcessCrashWithoutAutorestart(t *testing.T) {
	dir := t.TempDir()
	sup := newRealSupervisor(t, "", shellSpec("crasher", "exit 3", dir))

	_, err := sup.StartProcess(context.Background(), "crasher")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _ := sup.GetProcessStatus("crasher")
		return status.PermanentlyFailed
	}, 5*time.Second, 10*time.Millisecond)

	status, _ := sup.GetProcessStatus("crasher")
	assert.Equal(t, domain.StateStopped, status.State)
	assert.Equal(t, "exit code 3", status.LastExit)
}

func TestSupervisor_RealProcessStopAndPIDFile(t *testing.T) {
	dir := t.TempDir()
	pidDir := filepath.Join(dir, "pids")
	sup := newRealSupervisor(t, pidDir, shellSpec("sleeper", "exec sleep 30", dir))

	results, err := sup.StartProcess(context.Background(), "sleeper")
	require.NoError(t, err)
	require.True(t, results[0].Success, results[0].Error)

	status, err := sup.GetProcessStatus("sleeper")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		status, _ = sup.GetProcessStatus("sleeper")
		return status.PID > 0
	}, 5*time.Second, 10*time.Millisecond)

	pids := processfile.NewPIDFileManager(pidDir, newMockLogger())
	pid, err := pids.ReadPIDFile("sleeper")
	require.NoError(t, err)
	assert.Equal(t, status.PID, pid)

	start := time.Now()
	results, err = sup.StopProcess(context.Background(), "sleeper")
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = os.Stat(pids.PIDFilePath("sleeper"))
	assert.True(t, os.IsNotExist(err))
}
