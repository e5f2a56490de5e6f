package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailed(t *testing.T) {
	assert.False(t, Failed(nil))
	assert.False(t, Failed([]Result{{Name: "watcher", Success: true}}))
	assert.True(t, Failed([]Result{
		{Name: "watcher", Success: true},
		{Name: "scheduler", Success: false, Error: "executable not found"},
	}))
}
