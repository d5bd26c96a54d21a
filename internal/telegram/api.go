// ABOUTME: Minimal Telegram Bot API client over net/http
// ABOUTME: Long-polling getUpdates, sendMessage with parse modes, and typing indicators

package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/markup"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// ErrMarkupRejected indicates the API refused a message because its entity
// markup failed to parse. The caller should resend the text unformatted.
var ErrMarkupRejected = errors.New("markup rejected by telegram")

// Client is a thin Bot API client. It covers only the calls the bot needs.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Bot API client. A nil httpClient gets a 60-second
// default; baseURL is usually DefaultBaseURL but tests point it elsewhere.
// Callers that long-poll should pass NewPollingHTTPClient instead, sized to
// their poll timeout.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// NewPollingHTTPClient returns an HTTP client whose timeout exceeds the
// getUpdates long-poll window, so a configured poll timeout can never starve
// its own requests. The margin also comfortably covers sendMessage calls.
func NewPollingHTTPClient(pollTimeout time.Duration) *http.Client {
	if pollTimeout < 0 {
		pollTimeout = 0
	}
	return &http.Client{Timeout: pollTimeout + 30*time.Second}
}

// Update is one entry from getUpdates. Only message updates are handled.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an inbound chat message (the subset the bot consumes).
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Chat identifies where a message was sent.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName builds a human-readable name from the profile fields,
// preferring first+last name, then either alone, then the @username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	username := strings.TrimSpace(u.Username)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case username != "":
		return "@" + username
	default:
		return ""
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// GetMe fetches the bot's own profile, used as a startup connectivity check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	raw, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var me User
	if err := json.Unmarshal(raw, &me); err != nil {
		return nil, fmt.Errorf("decoding getMe result: %w", err)
	}
	return &me, nil
}

// GetUpdates long-polls for new updates starting at offset and returns them
// with the next offset to poll from.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	payload := map[string]any{
		"timeout":         secs,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	// The request must outlive the server-side poll window.
	reqCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	raw, err := c.call(reqCtx, "getUpdates", payload)
	if err != nil {
		return nil, offset, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, offset, fmt.Errorf("decoding updates: %w", err)
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// SendMessage sends text to a chat with the given parse mode. A markup parse
// failure is reported as ErrMarkupRejected so the caller can fall back to
// plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, mode markup.ParseMode) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if mode != markup.ParseModeNone {
		payload["parse_mode"] = string(mode)
	}

	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// SendChatAction shows a "typing…" style indicator in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
	return err
}

// call POSTs one Bot API method and returns the raw result payload.
func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var decoded apiResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !decoded.OK {
		desc := strings.TrimSpace(decoded.Description)
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(desc), "can't parse entities") {
			return nil, fmt.Errorf("%w: %s", ErrMarkupRejected, desc)
		}
		return nil, fmt.Errorf("telegram %s: http %d: %s", method, resp.StatusCode, desc)
	}
	return decoded.Result, nil
}
