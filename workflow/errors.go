package workflow

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeAdapterUnavailable ErrorCode = "ADAPTER_UNAVAILABLE"
	CodeStalePrecondition  ErrorCode = "STALE_PRECONDITION"
	CodeQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	CodeRollbackExpired    ErrorCode = "ROLLBACK_EXPIRED"
	CodeConflictingFix     ErrorCode = "CONFLICTING_FIX"
	CodeFixNotPending      ErrorCode = "FIX_NOT_PENDING"
	CodeFixNotApplied      ErrorCode = "FIX_NOT_APPLIED"
	CodePlanNotPending     ErrorCode = "PLAN_NOT_PENDING"
)

// Error is the stable failure taxonomy of the fix lifecycle. Retryability is
// a property of the code: only ADAPTER_UNAVAILABLE is worth another attempt,
// everything else reflects state that a retry cannot change.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

func CodeOf(err error) (ErrorCode, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we.Code, true
	}
	return "", false
}

// IsRetryable reports whether a failed operation may succeed on a later
// attempt. Used by the job processor to decide between backoff and DEAD.
func IsRetryable(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	return code == CodeAdapterUnavailable
}
