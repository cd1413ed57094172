package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorPayload is the 'error' object of a JSON-RPC response.
type ErrorPayload struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Request is a JSON-RPC 2.0 request object. ID is never nil for a well
// formed request; a nil ID after decoding indicates a Notification instead.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Meta    *RequestMeta    `json:"_meta,omitempty"`
}

// Response is a JSON-RPC 2.0 response object. Exactly one of Result/Error
// is populated.
type Response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification: shaped like a Request but
// carries no id and expects no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Envelope is any one of Request, Response, or Notification as read off the
// wire, before the dispatcher decides which it is. Decode into this first
// and inspect Method/ID to classify.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// Kind classifies a decoded Envelope.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
	KindInvalid
)

// Classify determines whether e is a Request, Notification, or Response.
// A Request has both a method and a non-null id; a Notification has a
// method and no id; a Response has an id and no method. The presence of
// result, error or params is not checked.
func (e *Envelope) Classify() Kind {
	hasID := len(e.ID) > 0 && string(e.ID) != "null"
	hasMethod := e.Method != ""
	switch {
	case hasMethod && hasID:
		return KindRequest
	case hasMethod && !hasID:
		return KindNotification
	case !hasMethod && hasID:
		return KindResponse
	default:
		return KindInvalid
	}
}

// AsRequest decodes e as a Request. Callers should check Classify first.
func (e *Envelope) AsRequest() (*Request, error) {
	var id interface{}
	if len(e.ID) > 0 {
		if err := json.Unmarshal(e.ID, &id); err != nil {
			return nil, fmt.Errorf("invalid request id: %w", err)
		}
	}
	return &Request{
		JSONRPC: e.JSONRPC,
		ID:      id,
		Method:  e.Method,
		Params:  e.Params,
	}, nil
}

// AsNotification decodes e as a Notification.
func (e *Envelope) AsNotification() *Notification {
	return &Notification{
		JSONRPC: e.JSONRPC,
		Method:  e.Method,
		Params:  e.Params,
	}
}

// NewNotification constructs a ready-to-marshal notification envelope.
func NewNotification(method string, params interface{}) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewSuccessResponse constructs a success response for id.
func NewSuccessResponse(id interface{}, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewErrorResponse constructs an error response for id.
func NewErrorResponse(id interface{}, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorPayload{Code: code, Message: message, Data: data},
	}
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// UnmarshalParams decodes req.Params into target, or returns an
// *ErrorPayload-friendly error if absent.
func UnmarshalParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
