package process

import (
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if strings.TrimSpace(config.Command) == "" {
		return errors.NewValidationError("command is required", nil)
	}

	for key := range config.Environment {
		if key == "" {
			return errors.NewValidationError("environment variable name cannot be empty", nil)
		}
		if strings.ContainsAny(key, "=\x00") {
			return errors.NewValidationError("invalid environment variable name: "+key, nil)
		}
	}

	return nil
}
