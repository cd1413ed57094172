package protocol

import "fmt"

// MCPError is the domain error type handlers return. The dispatcher maps it
// to a JSON-RPC ErrorPayload on the way out; everything else a handler
// returns is treated as an internal error (-32603).
type MCPError struct {
	ErrorPayload
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an MCPError for malformed or schema-invalid
// request parameters.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInvalidParams, Message: message}}
}

// NewNotFoundError builds an MCPError for a missing tool, resource, or
// prompt. Per the dispatcher's error taxonomy this also maps to -32602,
// since the identifying parameter (name/uri) was what was invalid.
func NewNotFoundError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInvalidParams, Message: message}}
}

// NewInvalidRequestError builds an MCPError for a structurally malformed
// JSON-RPC envelope or a request the server refuses as such: wrong jsonrpc
// version, an oversized payload, a duplicate request id, a repeated
// initialize, or a rate-limit rejection.
func NewInvalidRequestError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInvalidRequest, Message: message}}
}

// NewMethodNotFoundError builds an MCPError for an unrecognized method.
func NewMethodNotFoundError(method string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}}
}

// NewServerNotReadyError builds an MCPError for a method invoked outside
// the Operating lifecycle state.
func NewServerNotReadyError(state string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeServerNotReady, Message: fmt.Sprintf("server not ready: state=%s", state)}}
}

// NewInternalError builds an MCPError wrapping an unexpected failure.
func NewInternalError(err error) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInternalError, Message: "internal error", Data: err.Error()}}
}

// NewAuthenticationFailedError builds an MCPError for a missing or invalid
// bearer token.
func NewAuthenticationFailedError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeAuthenticationFailed, Message: message}}
}

// NewCancelledError builds an MCPError reported to a caller whose request
// was cooperatively cancelled. Cancellation is a domain error, not a
// transport-level one, so it rides the normal error-response path.
func NewCancelledError(requestID interface{}) *MCPError {
	return &MCPError{ErrorPayload{
		Code:    CodeInternalError,
		Message: "request cancelled",
		Data:    map[string]interface{}{"requestId": requestID},
	}}
}

// AsMCPError unwraps err into an *MCPError if possible, otherwise wraps it
// as an internal error. Used by the dispatcher's panic/error translation.
func AsMCPError(err error) *MCPError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MCPError); ok {
		return me
	}
	return NewInternalError(err)
}
