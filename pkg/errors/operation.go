package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a classified lead operation error.
type ErrorCode string

const (
	ErrCodeTimeout          ErrorCode = "timeout"
	ErrCodeCancelled        ErrorCode = "cancelled"
	ErrCodeUnavailable      ErrorCode = "unavailable"
	ErrCodeUnauthenticated  ErrorCode = "unauthenticated"
	ErrCodeForbidden        ErrorCode = "forbidden"
	ErrCodeValidation       ErrorCode = "validation"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeFetchFailed      ErrorCode = "fetch_failed"
	ErrCodeClassifyRejected ErrorCode = "classify_rejected"
)

// Operation names used in OperationError.Op.
const (
	OpLoad     = "load"
	OpClassify = "classify"
)

// OperationError is a structured error for a failed coordinator operation.
type OperationError struct {
	Code    ErrorCode
	Op      string
	LeadID  string
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	if e.LeadID != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.LeadID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Classify inspects err and returns an *OperationError with the appropriate code.
// Sentinel domain errors take precedence over message patterns; anything
// unrecognised falls back to the op's generic code.
func Classify(err error, op, leadID string) *OperationError {
	if err == nil {
		return nil
	}

	oe := &OperationError{
		Op:      op,
		LeadID:  leadID,
		Message: err.Error(),
		Cause:   err,
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		oe.Code = ErrCodeTimeout
		oe.Message = "request timed out"
	case errors.Is(err, context.Canceled):
		oe.Code = ErrCodeCancelled
		oe.Message = "request cancelled"
	case errors.Is(err, ErrUnauthorized):
		oe.Code = ErrCodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		oe.Code = ErrCodeForbidden
	case errors.Is(err, ErrValidation):
		oe.Code = ErrCodeValidation
	case errors.Is(err, ErrNotFound):
		oe.Code = ErrCodeNotFound
	case errors.Is(err, ErrUnavailable), looksUnavailable(err):
		oe.Code = ErrCodeUnavailable
	case op == OpClassify:
		oe.Code = ErrCodeClassifyRejected
	default:
		oe.Code = ErrCodeFetchFailed
	}

	return oe
}

// looksUnavailable matches transport failures that arrive without a sentinel.
func looksUnavailable(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "503")
}

// CodeOf returns the code of the first OperationError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
// This function checks the error code using the ErrorCodeRegistry.
func IsErrorRetryable(err error) bool {
	var oe *OperationError
	if errors.As(err, &oe) {
		if info, ok := ErrorCodeRegistry[oe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
