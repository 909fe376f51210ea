package domain

import "fmt"

// Standard JSON-RPC 2.0 error codes plus the server's custom range
// (-32000 to -32099) for session-lifecycle failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeSessionNotFound = -32000
	CodeSessionConflict = -32001
	CodeNotInitialized  = -32002
)

// Error is a domain error carrying a JSON-RPC error code. Two domain errors
// match under errors.Is when their codes are equal, so the sentinels below
// can be used as errors.Is targets for any detail-carrying instance.
type Error struct {
	Code    int
	Message string
	Data    any
}

// Error returns the error message.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is a domain error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a domain error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a domain error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for the transport taxonomy.
var (
	ErrInvalidRequest  = NewError(CodeInvalidRequest, "invalid request")
	ErrMethodNotFound  = NewError(CodeMethodNotFound, "method not found")
	ErrInvalidParams   = NewError(CodeInvalidParams, "invalid params")
	ErrSessionNotFound = NewError(CodeSessionNotFound, "session not found")
	ErrSessionConflict = NewError(CodeSessionConflict, "session conflict")
	ErrNotInitialized  = NewError(CodeNotInitialized, "session not initialized")
)
