// Package message defines the conversation data model shared by the store,
// the completion client and the tool dispatcher.
package message

import (
	"encoding/json"
)

// Role identifies who authored a message
type Role string

const (
	RoleDeveloper  Role = "developer"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolOutput Role = "tool_output"
)

// Roles returns the closed set of valid roles
func Roles() []Role {
	return []Role{RoleDeveloper, RoleUser, RoleAssistant, RoleToolOutput}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RoleUser, RoleAssistant, RoleToolOutput:
		return true
	}
	return false
}

// Message is a single entry of a conversation.
//
// Text turns carry Content. Tool outputs carry CallID and Content (the output).
// Messages replaying a model output item carry Item and have RoleAssistant.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Custom  bool   `json:"custom,omitempty"`
	Item    Item   `json:"-"`
}

// IsToolOutput reports whether the message is the result of a tool call
func (m Message) IsToolOutput() bool {
	return m.Role == RoleToolOutput
}

// ToolKind distinguishes function calls from custom tool calls
type ToolKind string

const (
	ToolKindFunction ToolKind = "function"
	ToolKindCustom   ToolKind = "custom"
)

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID        string   `json:"call_id"`
	Name      string   `json:"name"`
	Kind      ToolKind `json:"kind"`
	Arguments string   `json:"arguments,omitempty"` // JSON-encoded, function calls only
	Input     string   `json:"input,omitempty"`     // raw input, custom calls only
}

// ToolResult is the output recorded for a ToolCall
type ToolResult struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
	Custom bool   `json:"custom,omitempty"`
}

// Item is a completion output item. The concrete types are PlainMessage,
// ReasoningTrace, FunctionCallRequest and CustomToolCallRequest.
type Item interface {
	ItemID() string
	// Raw returns the item as received on the wire, or nil when the item was
	// built locally.
	Raw() json.RawMessage
	isItem()
}

// PlainMessage is assistant text
type PlainMessage struct {
	ID   string
	Text string
	Wire json.RawMessage
}

func (m PlainMessage) ItemID() string       { return m.ID }
func (m PlainMessage) Raw() json.RawMessage { return m.Wire }
func (PlainMessage) isItem()                {}

// ReasoningTrace is a reasoning item; Summary holds its summary texts
type ReasoningTrace struct {
	ID      string
	Summary []string
	Wire    json.RawMessage
}

func (r ReasoningTrace) ItemID() string       { return r.ID }
func (r ReasoningTrace) Raw() json.RawMessage { return r.Wire }
func (ReasoningTrace) isItem()                {}

// FunctionCallRequest asks for a function tool with JSON-encoded arguments
type FunctionCallRequest struct {
	ID        string
	CallID    string
	Name      string
	Arguments string
	Wire      json.RawMessage
}

func (f FunctionCallRequest) ItemID() string       { return f.ID }
func (f FunctionCallRequest) Raw() json.RawMessage { return f.Wire }
func (FunctionCallRequest) isItem()                {}

// ToolCall converts the request into a dispatchable ToolCall
func (f FunctionCallRequest) ToolCall() ToolCall {
	return ToolCall{ID: f.CallID, Name: f.Name, Kind: ToolKindFunction, Arguments: f.Arguments}
}

// CustomToolCallRequest asks for a custom tool with a free-form input
type CustomToolCallRequest struct {
	ID     string
	CallID string
	Name   string
	Input  string
	Wire   json.RawMessage
}

func (c CustomToolCallRequest) ItemID() string       { return c.ID }
func (c CustomToolCallRequest) Raw() json.RawMessage { return c.Wire }
func (CustomToolCallRequest) isItem()                {}

// ToolCall converts the request into a dispatchable ToolCall
func (c CustomToolCallRequest) ToolCall() ToolCall {
	return ToolCall{ID: c.CallID, Name: c.Name, Kind: ToolKindCustom, Input: c.Input}
}

// Partition splits items into function calls and custom tool calls
func Partition(items []Item) (functions []ToolCall, custom []ToolCall) {
	for _, item := range items {
		switch it := item.(type) {
		case FunctionCallRequest:
			functions = append(functions, it.ToolCall())
		case CustomToolCallRequest:
			custom = append(custom, it.ToolCall())
		case PlainMessage, ReasoningTrace:
		}
	}
	return functions, custom
}

// FirstText returns the text of the first PlainMessage in items
func FirstText(items []Item) (string, bool) {
	for _, item := range items {
		if m, ok := item.(PlainMessage); ok {
			return m.Text, true
		}
	}
	return "", false
}

// ReasoningSummaries collects the summaries of every reasoning item
func ReasoningSummaries(items []Item) []string {
	var out []string
	for _, item := range items {
		if r, ok := item.(ReasoningTrace); ok {
			out = append(out, r.Summary...)
		}
	}
	return out
}
