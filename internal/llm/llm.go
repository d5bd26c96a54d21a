// ABOUTME: Reply-generation collaborator contract
// ABOUTME: Defines the message/tool types and the Generator interface the orchestrator depends on

package llm

import (
	"context"
	"encoding/json"
)

// Message is one entry of the model input, oldest first.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes one callable tool offered to the model.
// Call executes the tool; it is never invoked by the orchestrator, only by
// generators that support tool calling.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Call        func(ctx context.Context, args json.RawMessage) (string, error)
}

// Generator produces a reply for an ordered sequence of messages.
// Implementations may use the provided tools; a failure of any kind is
// returned as an error and the caller substitutes its fallback text.
type Generator interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, error)
}
