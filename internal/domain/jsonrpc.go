// Package domain defines the JSON-RPC protocol types, the error taxonomy,
// and the tool surface consumed by the transport layer.
package domain

import (
	"encoding/json"
	"errors"
)

// Version is the only JSON-RPC protocol version the server speaks.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request or notification envelope.
// Presence of ID distinguishes a request (a response is required) from a
// notification (fire-and-forget, no response is ever emitted).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the envelope is a protocol notification.
func (r Request) IsNotification() bool {
	return r.ID == nil
}

// Validate checks the envelope shape. It runs before dispatch so a malformed
// envelope never reaches a handler.
func (r Request) Validate() error {
	if r.JSONRPC != Version {
		return NewError(CodeInvalidRequest, "unsupported jsonrpc version")
	}
	if r.Method == "" {
		return NewError(CodeInvalidRequest, "missing method")
	}
	return nil
}

// Response represents a JSON-RPC 2.0 response envelope. It carries either a
// result or an error, never both, and echoes the originating request ID.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  any            `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error member of a response envelope.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-originated JSON-RPC notification. It has no ID and
// is delivered only over the push stream, never on the synchronous path.
type Notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// NewNotification creates a notification envelope for the given method.
func NewNotification(method string, params map[string]any) Notification {
	return Notification{JSONRPC: Version, Method: method, Params: params}
}

// NewResponse creates a success response echoing the given request ID.
func NewResponse(id any, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse creates an error response echoing the given request ID.
func NewErrorResponse(id any, code int, message string, data any) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message, Data: data},
	}
}

// ResponseFromError converts a handler or lifecycle error into an error
// response. Domain errors keep their code; anything else becomes an internal
// error carrying the error text as detail.
func ResponseFromError(id any, err error) Response {
	var de *Error
	if errors.As(err, &de) {
		return NewErrorResponse(id, de.Code, de.Message, de.Data)
	}
	return NewErrorResponse(id, CodeInternalError, "internal error", err.Error())
}
