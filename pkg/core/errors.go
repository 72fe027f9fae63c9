package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: element_not_found, timeout, etc.
	Message  string                 // Human-readable message
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

// Is matches errors by code so copies made with WithMessage/WithCause
// still satisfy errors.Is against the package sentinels.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
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

// Predefined errors (like W3C WebDriver error codes)
var (
	// Assertion errors
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_found",
		Message:  "element not found",
	}
	ErrElementNotVisible = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "element_not_visible",
		Message:  "element not visible",
	}
	ErrTextMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "text_mismatch",
		Message:  "text does not match expected value",
	}
	ErrCountMismatch = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "count_mismatch",
		Message:  "element count does not match",
	}
	ErrAssertionFailed = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     "assertion_failed",
		Message:  "assertion failed",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}
	ErrWaitTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "wait_timeout",
		Message:  "wait condition timed out",
	}

	// Connection errors
	ErrBrowserClosed = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "browser_closed",
		Message:  "browser connection lost",
	}
	ErrServerUnreachable = &ExecutionError{
		Category: ErrCategoryConnection,
		Code:     "server_unreachable",
		Message:  "could not reach the annotation server",
	}

	// App errors
	ErrNavigationFailed = &ExecutionError{
		Category: ErrCategoryApp,
		Code:     "navigation_failed",
		Message:  "page navigation failed",
	}
	ErrSettingsUnavailable = &ExecutionError{
		Category: ErrCategoryApp,
		Code:     "settings_unavailable",
		Message:  "workspace settings are not open",
	}
	ErrScriptFailed = &ExecutionError{
		Category: ErrCategoryApp,
		Code:     "script_failed",
		Message:  "script failed",
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
	ErrUnsupportedStep = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unsupported_step",
		Message:  "step is not supported by this driver",
	}
)

// CategoryOf returns the category of the first ExecutionError in err's chain.
// Check failures count as assertions; anything else unclassified is none.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	if check.IsAssertionFailure(err) {
		return ErrCategoryAssertion
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCategoryTimeout
	}
	return ErrCategoryNone
}

// AsAssertion wraps a check failure as an assertion_failed ExecutionError.
// Other errors are returned unchanged.
func AsAssertion(err error) error {
	var failure *check.AssertionFailure
	if errors.As(err, &failure) {
		return ErrAssertionFailed.WithCause(err).WithDetails(map[string]interface{}{
			"check":     failure.Check,
			"condition": failure.Condition,
			"expected":  failure.Expected,
			"actual":    failure.Actual,
		})
	}
	return err
}

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
