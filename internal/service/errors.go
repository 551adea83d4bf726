package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type ErrorType int

const (
	ErrConfig ErrorType = iota
	ErrSchedule
	ErrSync
	ErrWatch
	ErrStorage
	ErrUnknown
)

// RunnerError is the typed error returned by the runner.
type RunnerError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *RunnerError {
	return &RunnerError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *RunnerError {
	return &RunnerError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *RunnerError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for _, k := range slices.Sorted(maps.Keys(e.Context)) {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *RunnerError) Unwrap() error {
	return e.Cause
}

func (e *RunnerError) WithContext(key string, value any) *RunnerError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrConfig:
		return "Config"
	case ErrSchedule:
		return "Schedule"
	case ErrSync:
		return "Sync"
	case ErrWatch:
		return "Watch"
	case ErrStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// Advice returns a hint for the operator, used when logging failed runs.
func Advice(err error) string {
	var runnerErr *RunnerError
	if !errors.As(err, &runnerErr) {
		return "Check the splash config source and the stored metadata"
	}
	switch runnerErr.Type {
	case ErrConfig:
		return "Check SPLASH_* environment variables and the settings file"
	case ErrSchedule:
		return "Use a five-field cron expression, optionally with seconds, or a descriptor such as @hourly"
	case ErrSync:
		return "Check that the config source is reachable and returns a valid splash config"
	case ErrWatch:
		return "Check that the config file directory exists and is readable"
	case ErrStorage:
		return "Check that the data directory is writable"
	default:
		return "Review the detailed error and the runner logs"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var runnerErr *RunnerError
	if errors.As(err, &runnerErr) {
		return runnerErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *RunnerError {
	return NewErrorWithCause(errorType, message, err)
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
