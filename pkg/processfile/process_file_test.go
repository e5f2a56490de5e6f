package processfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-supervisor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogger implements a basic logger for testing
type MockLogger struct{}

func (m *MockLogger) Debugf(format string, args ...interface{})               {}
func (m *MockLogger) Infof(format string, args ...interface{})                {}
func (m *MockLogger) Warnf(format string, args ...interface{})                {}
func (m *MockLogger) Errorf(format string, args ...interface{})               {}
func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {}

func TestPIDFileManager_WriteReadRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	manager := NewPIDFileManager(dir, &MockLogger{})
	require.True(t, manager.Enabled())

	assert.Equal(t, filepath.Join(dir, "watcher.pid"), manager.PIDFilePath("watcher"))

	require.NoError(t, manager.WritePIDFile("watcher", 4321))

	data, err := os.ReadFile(manager.PIDFilePath("watcher"))
	require.NoError(t, err)
	assert.Equal(t, "4321\n", string(data))

	pid, err := manager.ReadPIDFile("watcher")
	require.NoError(t, err)
	assert.Equal(t, 4321, pid)

	// Overwrite on relaunch
	require.NoError(t, manager.WritePIDFile("watcher", 4400))
	pid, err = manager.ReadPIDFile("watcher")
	require.NoError(t, err)
	assert.Equal(t, 4400, pid)

	require.NoError(t, manager.RemovePIDFile("watcher"))
	_, err = manager.ReadPIDFile("watcher")
	assert.True(t, errors.IsNotFoundError(err))

	// Removing twice is fine
	assert.NoError(t, manager.RemovePIDFile("watcher"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temporary files left behind")
}

func TestPIDFileManager_Disabled(t *testing.T) {
	manager := NewPIDFileManager("", &MockLogger{})
	assert.False(t, manager.Enabled())

	assert.NoError(t, manager.WritePIDFile("watcher", 1))
	assert.NoError(t, manager.RemovePIDFile("watcher"))
	_, err := manager.ReadPIDFile("watcher")
	assert.True(t, errors.IsNotFoundError(err))

	var nilManager *PIDFileManager
	assert.False(t, nilManager.Enabled())
}

func TestPIDFileManager_InvalidContent(t *testing.T) {
	dir := t.TempDir()
	manager := NewPIDFileManager(dir, &MockLogger{})
	require.NoError(t, os.WriteFile(manager.PIDFilePath("scheduler"), []byte("abc\n"), 0644))

	_, err := manager.ReadPIDFile("scheduler")
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestValidatePIDFileDirectory(t *testing.T) {
	dir := t.TempDir()

	t.Run("creates_missing", func(t *testing.T) {
		path := filepath.Join(dir, "a", "b", "x.pid")
		require.NoError(t, ValidatePIDFileDirectory(path))
		info, err := os.Stat(filepath.Dir(path))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("file_in_the_way", func(t *testing.T) {
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0644))
		err := ValidatePIDFileDirectory(filepath.Join(blocker, "x.pid"))
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})
}
