package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/grovetools/livesync/errors"
	"github.com/invopop/jsonschema"
)

// ConversationMessage is one entry of a task's agent conversation, as served
// by the conversation endpoint and pushed by the task live stream.
type ConversationMessage struct {
	ID         ID     `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// JSONSchema allows null for the columns the server leaves empty.
func (ConversationMessage) JSONSchema() *jsonschema.Schema {
	nullableString := func() *jsonschema.Schema {
		return &jsonschema.Schema{OneOf: []*jsonschema.Schema{{Type: "string"}, {Type: "null"}}}
	}
	props := jsonschema.NewProperties()
	props.Set("id", ID("").JSONSchema())
	props.Set("role", &jsonschema.Schema{Type: "string"})
	props.Set("timestamp", &jsonschema.Schema{Type: "string"})
	for _, key := range []string{"content", "tool_name", "tool_input", "tool_output"} {
		props.Set(key, nullableString())
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"id", "role", "timestamp"},
	}
}

// DecodeConversation decodes the conversation endpoint's message list.
func DecodeConversation(raw []byte) ([]ConversationMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &body); err == nil && body.Error != "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, body.Error)
		}
		return nil, errors.Malformed("conversation", fmt.Errorf("expected a message list"))
	}

	var generic []interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, errors.Malformed("conversation", err)
	}
	for _, item := range generic {
		if err := validate(kindConversation, item); err != nil {
			return nil, errors.Malformed("conversation", err)
		}
	}

	var messages []ConversationMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, errors.Malformed("conversation", err)
	}
	return messages, nil
}

// DecodeMessage decodes and validates a single conversation message.
func DecodeMessage(raw json.RawMessage) (*ConversationMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, errors.Malformed("conversation message", err)
	}
	if err := validate(kindConversation, generic); err != nil {
		return nil, errors.Malformed("conversation message", err)
	}
	var msg ConversationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Malformed("conversation message", err)
	}
	return &msg, nil
}

// ToMap converts the message to the generic form stored in a keypath.Store.
func (m ConversationMessage) ToMap() map[string]interface{} {
	out := map[string]interface{}{
		"id":        string(m.ID),
		"role":      m.Role,
		"timestamp": m.Timestamp,
	}
	if m.Content != "" {
		out["content"] = m.Content
	}
	if m.ToolName != "" {
		out["toolName"] = m.ToolName
	}
	if m.ToolInput != "" {
		out["toolInput"] = m.ToolInput
	}
	if m.ToolOutput != "" {
		out["toolOutput"] = m.ToolOutput
	}
	return out
}
