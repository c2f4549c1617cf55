package browser

import "fmt"

// ErrorCode classifies automation failures so the gateway can map them
// to HTTP statuses and clients can branch on the kind.
type ErrorCode string

const (
	CodeNavigation        ErrorCode = "navigation_error"
	CodeSessionNotFound   ErrorCode = "session_not_found"
	CodeStaleElement      ErrorCode = "stale_element"
	CodeElementNotFound   ErrorCode = "element_not_found"
	CodeInteractionFailed ErrorCode = "interaction_failed"
	CodeTimeout           ErrorCode = "timeout"
	CodeCancelled         ErrorCode = "cancelled"
	CodeScript            ErrorCode = "script_error"
	CodeCapture           ErrorCode = "capture_error"
	CodeNoBaseline        ErrorCode = "no_baseline"
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeInternal          ErrorCode = "internal"
)

// Error is a classified automation error.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a classified error.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the error code for err, or CodeInternal for
// unclassified errors.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}
