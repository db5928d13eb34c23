package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes construction errors.
type ErrorCode string

const (
	// ErrCodeInvalidScenario indicates the scenario failed validation.
	ErrCodeInvalidScenario ErrorCode = "INVALID_SCENARIO"

	// ErrCodeInvalidConfig indicates pacing values the engine cannot use.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrCodeMissingDependency indicates a nil host or renderer.
	ErrCodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"
)

// Error is returned by New. Playback itself never fails: misuse of
// Play/Pause is a logged no-op.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalidScenario reports whether err came from scenario validation.
// Uses errors.As to handle wrapped errors.
func IsInvalidScenario(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeInvalidScenario
	}
	return false
}

// IsInvalidConfig reports whether err came from config validation.
func IsInvalidConfig(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeInvalidConfig
	}
	return false
}
