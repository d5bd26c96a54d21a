// ABOUTME: Mock generator used when no API key is configured
// ABOUTME: Echoes the last user message so the bot runs end-to-end in development

package llm

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Mock is a stand-in generator for development setups without an API key.
type Mock struct{}

// NewMock creates a mock generator.
func NewMock() *Mock {
	return &Mock{}
}

// Generate echoes the last message back with a mock marker.
func (m *Mock) Generate(_ context.Context, messages []Message, _ []ToolDefinition) (string, error) {
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	if len(last) > 200 {
		cut := 200
		for cut > 0 && !utf8.RuneStart(last[cut]) {
			cut--
		}
		last = last[:cut]
	}
	return fmt.Sprintf("(mock)\nYou said: %s\n\nTo enable real AI replies, set the OpenAI API key in the config.", last), nil
}
