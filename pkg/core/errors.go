package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_missing, precondition_failed, etc.
	Message  string                 // Human-readable message naming the element involved
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so copies made with the With*
// helpers still match the predefined errors.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// Setup could not reach a known starting screen
	ErrLauncherNotVisible = &ExecutionError{
		Category: ErrCategoryPrecondition,
		Code:     "launcher_not_visible",
		Message:  "launcher not visible",
	}
	ErrAppNotVisible = &ExecutionError{
		Category: ErrCategoryPrecondition,
		Code:     "app_not_visible",
		Message:  "application not visible after launch",
	}
	ErrAppLaunchFailed = &ExecutionError{
		Category: ErrCategoryPrecondition,
		Code:     "app_launch_failed",
		Message:  "application could not be launched",
	}

	// Required element absent
	ErrElementMissing = &ExecutionError{
		Category: ErrCategoryElementMissing,
		Code:     "element_missing",
		Message:  "element not found",
	}

	// Element found but expected state did not appear
	ErrAssertionMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_mismatch",
		Message:  "expected state did not appear",
	}

	// Connection errors
	ErrDriverUnavailable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "driver_unavailable",
		Message:  "could not acquire automation driver",
	}
	ErrDriverCommand = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "driver_command_failed",
		Message:  "automation driver command failed",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
// Errors that carry no category are treated as connection failures.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return ErrCategoryConnection
}
