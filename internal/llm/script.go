package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedClient runs out of responses.
var ErrScriptExhausted = errors.New("scripted client: no responses left")

// ScriptedClient is a Client for tests. It replays a fixed queue of responses
// and records every request it receives.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []*Message
	requests  []Request
	// Err, when set, is returned by every Complete call.
	Err error
	// Unhealthy makes Healthy report false.
	Unhealthy bool
}

// NewScriptedClient creates a client that replays responses in order.
func NewScriptedClient(responses ...*Message) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Complete pops the next scripted response.
func (c *ScriptedClient) Complete(ctx context.Context, req Request) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.responses) == 0 {
		return nil, ErrScriptExhausted
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next, nil
}

// Healthy reports the scripted health state.
func (c *ScriptedClient) Healthy(ctx context.Context) bool {
	return !c.Unhealthy
}

// Requests returns a copy of all requests seen so far.
func (c *ScriptedClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// TextResponse is a convenience constructor for a plain assistant message.
func TextResponse(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// ToolCallResponse is a convenience constructor for an assistant message that
// requests a tool call.
func ToolCallResponse(id, name, arguments string) *Message {
	return &Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: arguments}},
	}
}
