package check

import (
	"errors"
	"fmt"
)

// AssertionFailure reports a single failed comparison.
type AssertionFailure struct {
	Check     string // position, content, visibility, count
	Condition string // the comparison that did not hold
	Expected  string
	Actual    string
}

// Error implements the error interface.
func (f *AssertionFailure) Error() string {
	if f.Expected == "" && f.Actual == "" {
		return fmt.Sprintf("%s check failed: %s", f.Check, f.Condition)
	}
	return fmt.Sprintf("%s check failed: %s (expected %s, got %s)", f.Check, f.Condition, f.Expected, f.Actual)
}

// IsAssertionFailure reports whether err is, or wraps, an AssertionFailure.
func IsAssertionFailure(err error) bool {
	var f *AssertionFailure
	return errors.As(err, &f)
}

func failf(check, expected, actual, format string, args ...interface{}) *AssertionFailure {
	return &AssertionFailure{
		Check:     check,
		Condition: fmt.Sprintf(format, args...),
		Expected:  expected,
		Actual:    actual,
	}
}
