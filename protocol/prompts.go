package protocol

import "encoding/json"

// PromptArgument describes one named input a prompt template accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a prompt template available from the server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsResult is the result of 'prompts/list'.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// GetPromptParams is the payload of a 'prompts/get' request.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message in the expanded prompt sequence. Role is one
// of "user", "assistant", or "system".
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// MarshalJSON flattens Content (an interface) into plain JSON.
func (m PromptMessage) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role    string      `json:"role"`
		Content interface{} `json:"content"`
	}
	return json.Marshal(alias{Role: m.Role, Content: m.Content})
}

// UnmarshalJSON reconstructs the polymorphic Content field.
func (m *PromptMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := DecodeContentList([]json.RawMessage{raw.Content})
	if err != nil {
		return err
	}
	m.Role = raw.Role
	if len(content) == 1 {
		m.Content = content[0]
	}
	return nil
}

// GetPromptResult is the result of 'prompts/get'.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}
