package supervisor

import (
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logrouter"
)

// ValidateProcessName validates process name format and constraints
func ValidateProcessName(name string) error {
	if name == "" {
		return errors.NewValidationError("process name cannot be empty", nil)
	}

	if len(name) > 64 {
		return errors.NewValidationError("process name cannot exceed 64 characters", nil).WithContext("name", name)
	}

	if name == domain.TargetAll {
		return errors.NewValidationError("process name 'all' is reserved", nil)
	}

	for _, char := range name {
		if !isValidNameChar(char) {
			return errors.NewValidationError("process name contains invalid characters: only letters, numbers, hyphens, and underscores are allowed", nil).
				WithContext("name", name)
		}
	}

	return nil
}

// ValidateNetworkAddress validates a host:port listen address
func ValidateNetworkAddress(address string) error {
	if address == "" {
		return errors.NewValidationError("network address cannot be empty", nil)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid network address format: "+address, err)
	}

	if host == "" {
		return errors.NewValidationError("host cannot be empty in address: "+address, nil)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	if port < 0 || port > 65535 {
		return errors.NewValidationError("port must be between 0 and 65535 in address: "+address, nil)
	}

	return nil
}

// ValidatePort validates a TCP listen port
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil).WithContext("port", port)
	}
	return nil
}

// ValidateTimeout validates a timeout that must be positive
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}

// ValidateSinks rejects two destinations sharing a path
func ValidateSinks(sinks logrouter.Sinks) error {
	seen := make(map[string]string)
	for _, sink := range []struct {
		kind string
		path string
	}{
		{"out_file", sinks.Stdout},
		{"error_file", sinks.Stderr},
		{"log_file", sinks.Combined},
	} {
		if sink.path == "" {
			continue
		}
		if other, exists := seen[sink.path]; exists {
			return errors.NewValidationError("log sinks must be distinct", nil).
				WithContext("path", sink.path).WithContext("sinks", other+", "+sink.kind)
		}
		seen[sink.path] = sink.kind
	}
	return nil
}

// Helper function to check if character is valid for a name
func isValidNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_'
}
