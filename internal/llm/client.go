// Package llm defines the completion capability consumed by the agent:
// role-tagged messages in, one generated message out, with optional tool
// binding and structured output.
package llm

import "context"

// Role tags a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that request a tool invocation
	// instead of answering.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a model request to invoke a tool. Arguments is the raw JSON
// object the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a tool the model may call. Parameters is a JSON schema.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseSchema requests structured output conforming to a JSON schema.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// Request is one round-trip to the completion capability.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
	Schema   *ResponseSchema
}

// Client is the completion capability. Complete blocks until the model
// responds or ctx expires; implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (*Message, error)
	Healthy(ctx context.Context) bool
}
