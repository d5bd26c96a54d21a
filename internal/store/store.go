// ABOUTME: Entity types and sentinel errors for parley persistence
// ABOUTME: Defines User, Conversation, Message and the error kinds the store surfaces

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint,
// e.g. two concurrent first-contact turns inserting the same external id.
var ErrConflict = errors.New("constraint violation")

// Conversation status values.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User is one end-user of the bot, anchored by their Telegram identifier.
// ActiveConversationID points at the conversation new messages go to; it is
// nil until the first conversation is created, and may dangle if the row it
// referenced was removed out of band.
type User struct {
	ID                   int64
	ExternalID           string
	DisplayName          string
	ActiveConversationID *int64
}

// Conversation is one contiguous thread of messages owned by a user.
// A closed conversation is immutable: it is never reopened and never deleted.
type Conversation struct {
	ID        int64
	UserID    int64
	Status    string
	CreatedAt time.Time
}

// Message is one entry in a conversation. Messages are append-only and
// totally ordered by (created_at, id) within their conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	CreatedAt      time.Time
}
