// ABOUTME: OpenAI chat-completions client over raw net/http
// ABOUTME: Prepends the system prompt and runs a single tool-call round when the model asks for one

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://api.openai.com"

// OpenAI generates replies through the chat completions API.
type OpenAI struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client

	systemPrompt string
	logger       *slog.Logger
}

// NewOpenAI creates a client for the chat completions API. baseURL may be
// empty for the public endpoint. The system prompt is prepended to every
// request. Request deadlines come from the caller's context.
func NewOpenAI(baseURL, apiKey, model, systemPrompt string, logger *slog.Logger) *OpenAI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Model:        model,
		HTTP:         &http.Client{},
		systemPrompt: systemPrompt,
		logger:       logger.With("component", "llm"),
	}
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type toolSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends the conversation to the model and returns its reply.
// When the model responds with tool calls, the registered handlers run and
// one follow-up completion is issued with the results appended.
func (c *OpenAI) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, error) {
	chat := make([]chatMessage, 0, len(messages)+1)
	if c.systemPrompt != "" {
		chat = append(chat, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	for _, m := range messages {
		chat = append(chat, chatMessage{Role: m.Role, Content: m.Content})
	}

	specs := toolSpecs(tools)

	msg, err := c.complete(ctx, chat, specs)
	if err != nil {
		return "", err
	}

	if len(msg.ToolCalls) == 0 {
		return strings.TrimSpace(msg.Content), nil
	}

	// One tool round: execute each requested tool, append the results, and
	// ask the model to finish. Handler failures become error-text results;
	// the model decides what to tell the user.
	chat = append(chat, msg)
	for _, tc := range msg.ToolCalls {
		chat = append(chat, chatMessage{
			Role:       "tool",
			ToolCallID: tc.ID,
			Content:    c.runTool(ctx, tools, tc),
		})
	}

	msg, err = c.complete(ctx, chat, specs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// runTool executes one requested tool call and returns its result text.
// This never fails: unknown tools and handler errors are reported to the
// model as plain text.
func (c *OpenAI) runTool(ctx context.Context, tools []ToolDefinition, tc toolCall) string {
	name := tc.Function.Name

	var def *ToolDefinition
	for i := range tools {
		if tools[i].Name == name {
			def = &tools[i]
			break
		}
	}
	if def == nil || def.Call == nil {
		c.logger.Warn("model requested unregistered tool", "tool", name)
		return fmt.Sprintf("Tool %q is not registered.", name)
	}

	args := json.RawMessage(tc.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := def.Call(ctx, args)
	if err != nil {
		c.logger.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Tool %q failed: %v", name, err)
	}
	c.logger.Debug("tool executed", "tool", name)
	return result
}

func (c *OpenAI) complete(ctx context.Context, messages []chatMessage, tools []toolSpec) (chatMessage, error) {
	body := chatCompletionRequest{
		Model:    c.Model,
		Messages: messages,
		Tools:    tools,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return chatMessage{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return chatMessage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return chatMessage{}, fmt.Errorf("calling openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatMessage{}, fmt.Errorf("reading response: %w", err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return chatMessage{}, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil && out.Error.Message != "" {
			return chatMessage{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return chatMessage{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if len(out.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("openai: empty choices")
	}
	return out.Choices[0].Message, nil
}

func toolSpecs(tools []ToolDefinition) []toolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]toolSpec, 0, len(tools))
	for _, t := range tools {
		var s toolSpec
		s.Type = "function"
		s.Function.Name = t.Name
		s.Function.Description = t.Description
		s.Function.Parameters = t.Parameters
		specs = append(specs, s)
	}
	return specs
}
