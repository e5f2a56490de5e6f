package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of supervisor errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"

	// Process lifecycle errors
	ErrorTypeLaunch         ErrorType = "launch"
	ErrorTypeRuntimeCrash   ErrorType = "runtime_crash"
	ErrorTypeMemoryExceeded ErrorType = "memory_exceeded"
	ErrorTypeSignal         ErrorType = "signal"
	ErrorTypeNotRunning     ErrorType = "not_running"
	ErrorTypeSinkWrite      ErrorType = "sink_write"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// Process lifecycle errors

// NewLaunchError reports that a launch attempt failed before a process existed
// (executable missing, permission denied, working directory missing).
func NewLaunchError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeLaunch, message, cause)
}

func NewRuntimeCrashError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeRuntimeCrash, message, cause)
}

func NewMemoryExceededError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeMemoryExceeded, message, cause)
}

func NewSignalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeSignal, message, cause)
}

func NewNotRunningError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotRunning, message, cause)
}

func NewSinkWriteError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeSinkWrite, message, cause)
}

func isType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

// Error checking helpers
func IsValidationError(err error) bool     { return isType(err, ErrorTypeValidation) }
func IsNotFoundError(err error) bool       { return isType(err, ErrorTypeNotFound) }
func IsConflictError(err error) bool       { return isType(err, ErrorTypeConflict) }
func IsTimeoutError(err error) bool        { return isType(err, ErrorTypeTimeout) }
func IsPermissionError(err error) bool     { return isType(err, ErrorTypePermission) }
func IsIOError(err error) bool             { return isType(err, ErrorTypeIO) }
func IsInternalError(err error) bool       { return isType(err, ErrorTypeInternal) }
func IsCancelledError(err error) bool      { return isType(err, ErrorTypeCancelled) }
func IsLaunchError(err error) bool         { return isType(err, ErrorTypeLaunch) }
func IsRuntimeCrashError(err error) bool   { return isType(err, ErrorTypeRuntimeCrash) }
func IsMemoryExceededError(err error) bool { return isType(err, ErrorTypeMemoryExceeded) }
func IsSignalError(err error) bool         { return isType(err, ErrorTypeSignal) }
func IsNotRunningError(err error) bool     { return isType(err, ErrorTypeNotRunning) }
func IsSinkWriteError(err error) bool      { return isType(err, ErrorTypeSinkWrite) }

// ErrorCollection aggregates errors of bulk operations (start all, stop all)
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("%d errors occurred: %s", len(e.Errors), strings.Join(messages, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e *ErrorCollection) Unwrap() []error {
	return e.Errors
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
