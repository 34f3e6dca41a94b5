// internal/agent/errors.go
package agent

import (
	"fmt"
)

// ErrorCode is a string type used for structured error reporting from action executors.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeFeatureDisabled   ErrorCode = "FEATURE_DISABLED"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"

	// -- Device errors --
	// ErrCodeRateLimited means the click budget for the current minute is spent.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// -- Tool errors --
	ErrCodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// maxErrorMessage bounds ExecutionError.Message.
const maxErrorMessage = 100

// ExecutionError is the only error type returned by ExecutorRegistry.Execute.
type ExecutionError struct {
	Code    ErrorCode
	Action  ActionName
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Action, e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// newExecutionError wraps err; the message is truncated to maxErrorMessage runes.
func newExecutionError(code ErrorCode, action ActionName, err error) *ExecutionError {
	return &ExecutionError{
		Code:    code,
		Action:  action,
		Message: Truncate(err.Error(), maxErrorMessage),
		Err:     err,
	}
}
