package protocol

import (
	"encoding/json"
	"fmt"
)

// Implementation identifies an MCP client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RootsCapability advertises client support for the roots/list method and
// its list-changed notification.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities describes the optional features a connecting client
// supports.
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     *struct{}              `json:"sampling,omitempty"`
	Elicitation  *struct{}              `json:"elicitation,omitempty"`
}

// ListChangedCapability is the common shape for capabilities that may
// additionally advertise a list-changed notification.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability additionally advertises subscribe support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities describes the optional features this server supports.
// A nil field means the capability group is not offered at all; a non-nil
// zero-value struct means the group is offered with no sub-features.
type ServerCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Logging      *struct{}               `json:"logging,omitempty"`
	Completions  *struct{}               `json:"completions,omitempty"`
	Prompts      *ListChangedCapability  `json:"prompts,omitempty"`
	Resources    *ResourcesCapability    `json:"resources,omitempty"`
	Tools        *ListChangedCapability  `json:"tools,omitempty"`
}

// InitializeParams is the payload of an 'initialize' request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the payload of a successful 'initialize' response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// --- Content ---

// Content is implemented by every kind of message/result content: text,
// image, audio, and embedded-resource references.
type Content interface {
	ContentType() string
}

// TextContent is plain text content.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c TextContent) ContentType() string { return "text" }

// ImageContent is base64-encoded image content.
type ImageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func (c ImageContent) ContentType() string { return "image" }

// AudioContent is base64-encoded audio content.
type AudioContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func (c AudioContent) ContentType() string { return "audio" }

// ResourceContent embeds a reference to a server-side resource inline in a
// tool result or prompt message.
type ResourceContent struct {
	Type     string   `json:"type"`
	Resource Resource `json:"resource"`
}

func (c ResourceContent) ContentType() string { return "resource" }

// DecodeContentList decodes a JSON array of polymorphic content objects,
// dispatching on each element's "type" field.
func DecodeContentList(raw []json.RawMessage) ([]Content, error) {
	out := make([]Content, 0, len(raw))
	for _, item := range raw {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		var c Content
		switch probe.Type {
		case "text":
			var v TextContent
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, err
			}
			c = v
		case "image":
			var v ImageContent
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, err
			}
			c = v
		case "audio":
			var v AudioContent
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, err
			}
			c = v
		case "resource":
			var v ResourceContent
			if err := json.Unmarshal(item, &v); err != nil {
				return nil, err
			}
			c = v
		default:
			return nil, fmt.Errorf("unknown content type %q", probe.Type)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- Logging ---

// LoggingLevel is one of the eight RFC-5424-derived severities the
// logging/setLevel method and notifications/message envelopes use.
type LoggingLevel string

const (
	LogLevelDebug     LoggingLevel = "debug"
	LogLevelInfo      LoggingLevel = "info"
	LogLevelNotice    LoggingLevel = "notice"
	LogLevelWarning   LoggingLevel = "warning"
	LogLevelError     LoggingLevel = "error"
	LogLevelCritical  LoggingLevel = "critical"
	LogLevelAlert     LoggingLevel = "alert"
	LogLevelEmergency LoggingLevel = "emergency"
)

// logLevelSeverity assigns each level a numeric severity, lower is more
// severe (matching RFC 5424, where emergency=0 and debug=7).
var logLevelSeverity = map[LoggingLevel]int{
	LogLevelEmergency: 0,
	LogLevelAlert:     1,
	LogLevelCritical:  2,
	LogLevelError:     3,
	LogLevelWarning:   4,
	LogLevelNotice:    5,
	LogLevelInfo:      6,
	LogLevelDebug:     7,
}

// IsValidLoggingLevel reports whether l is one of the eight known levels.
func IsValidLoggingLevel(l LoggingLevel) bool {
	_, ok := logLevelSeverity[l]
	return ok
}

// AtLeastAsSevereAs reports whether l is at least as severe as threshold
// (i.e. should be emitted when the configured level is threshold).
func (l LoggingLevel) AtLeastAsSevereAs(threshold LoggingLevel) bool {
	ls, ok1 := logLevelSeverity[l]
	ts, ok2 := logLevelSeverity[threshold]
	if !ok1 || !ok2 {
		return false
	}
	return ls <= ts
}

// SetLevelParams is the payload of a 'logging/setLevel' request.
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageParams is the payload of a 'notifications/message'
// notification.
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   interface{}  `json:"data"`
}

// --- Sampling ---

// SamplingMessage is one message in the context sent to sampling/createMessage.
type SamplingMessage struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// MarshalJSON flattens Content (an interface slice) into plain JSON.
func (m SamplingMessage) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role    string        `json:"role"`
		Content []interface{} `json:"content"`
	}
	a := alias{Role: m.Role}
	for _, c := range m.Content {
		a.Content = append(a.Content, c)
	}
	return json.Marshal(a)
}

// UnmarshalJSON reconstructs the polymorphic Content slice.
func (m *SamplingMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContentList(raw.Content)
	if err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = content
	return nil
}

// ModelPreferences hints at the kind of model the server would like the
// client to sample from.
type ModelPreferences struct {
	IntelligencePriority *float64 `json:"intelligencePriority,omitempty"`
	SpeedPriority        *float64 `json:"speedPriority,omitempty"`
	CostPriority         *float64 `json:"costPriority,omitempty"`
}

// CreateMessageParams is the payload of a 'sampling/createMessage' request
// the server sends to the client.
type CreateMessageParams struct {
	Messages    []SamplingMessage `json:"messages"`
	Preferences *ModelPreferences `json:"modelPreferences,omitempty"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
}

// CreateMessageResult is the client's reply to sampling/createMessage.
type CreateMessageResult struct {
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model,omitempty"`
	StopReason string  `json:"stopReason,omitempty"`
}

// --- Roots ---

// Root is a filesystem or workspace root the client exposes to the server.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the client's reply to 'roots/list'.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// --- Elicitation ---

// ElicitRequestParams asks the client to collect structured input from its
// user on the server's behalf.
type ElicitRequestParams struct {
	Message         string                 `json:"message"`
	RequestedSchema map[string]interface{} `json:"requestedSchema"`
}

// ElicitResult is the client's reply to 'elicitation/request'.
type ElicitResult struct {
	Action  string                 `json:"action"` // "accept", "decline", "cancel"
	Content map[string]interface{} `json:"content,omitempty"`
}

// --- Cancellation & progress ---

// CancelledParams is the payload of a 'notifications/cancelled' notification.
type CancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// ProgressToken identifies a long-running operation for progress reporting.
type ProgressToken string

// ProgressParams is the payload of a 'notifications/progress' notification.
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// RequestMeta carries out-of-band metadata attached to a request's _meta
// field, such as a progress token or middleware-injected timing fields.
type RequestMeta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
	Timeout       *int64         `json:"_timeout,omitempty"`
	StartTime     *int64         `json:"_startTime,omitempty"`
}
