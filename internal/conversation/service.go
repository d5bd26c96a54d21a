// ABOUTME: Orchestrates one chat turn: user resolution, conversation rotation, context window, reply
// ABOUTME: Every turn runs in its own store session; generation failures degrade to a fixed fallback reply

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/store"
)

const (
	// ContextWindow is how many recent messages are replayed to the
	// generator on each turn.
	ContextWindow = 12

	// MaxMessagesPerConversation is the rotation cap: once a conversation
	// holds this many messages it is closed and a fresh one is started.
	MaxMessagesPerConversation = 200

	// FallbackReply is returned when reply generation fails for any reason.
	FallbackReply = "Something went wrong, please try again."

	// defaultGenerateTimeout bounds the generation call. The turn's
	// transaction stays open while the generator runs, so the call must not
	// hang indefinitely.
	defaultGenerateTimeout = 60 * time.Second
)

// Service processes chat turns against a store and a reply generator.
type Service struct {
	store     *store.SQLiteStore
	generator llm.Generator
	tools     []llm.ToolDefinition
	timeout   time.Duration
	logger    *slog.Logger
}

// NewService creates a turn orchestrator. A zero timeout selects the default
// generation timeout.
func NewService(st *store.SQLiteStore, gen llm.Generator, tools []llm.ToolDefinition, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	return &Service{
		store:     st,
		generator: gen,
		tools:     tools,
		timeout:   timeout,
		logger:    logger.With("component", "conversation"),
	}
}

// ProcessTurn handles one inbound message and returns the reply text. The
// whole turn runs in a single session: the user message, the assistant reply,
// and any rotation bookkeeping commit together or not at all. Generation
// failures do not fail the turn; the fallback reply is persisted and returned.
func (s *Service) ProcessTurn(ctx context.Context, externalID, displayName, userText string) (string, error) {
	turnID := uuid.NewString()
	logger := s.logger.With("turn_id", turnID, "external_id", externalID)
	logger.Debug("turn started", "text_len", len(userText))

	var reply string

	err := s.store.WithSession(ctx, func(sess *store.Session) error {
		user, err := s.ensureUser(ctx, sess, externalID, displayName)
		if err != nil {
			return err
		}

		conv, err := s.resolveActiveConversation(ctx, sess, user)
		if err != nil {
			return err
		}

		window, err := sess.LastMessages(ctx, conv.ID, ContextWindow)
		if err != nil {
			return err
		}

		if _, err := sess.InsertMessage(ctx, conv.ID, store.RoleUser, userText); err != nil {
			return err
		}

		input := make([]llm.Message, 0, len(window)+1)
		for _, m := range window {
			input = append(input, llm.Message{Role: m.Role, Content: m.Content})
		}
		input = append(input, llm.Message{Role: store.RoleUser, Content: userText})

		reply = s.generate(ctx, input)

		if _, err := sess.InsertMessage(ctx, conv.ID, store.RoleAssistant, reply); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("processing turn for %q: %w", externalID, err)
	}

	logger.Debug("turn committed", "reply_len", len(reply))
	return reply, nil
}

// EnsureUserAndConversation makes sure the user exists and has an active
// conversation, without recording a message. Used by commands like /start.
func (s *Service) EnsureUserAndConversation(ctx context.Context, externalID, displayName string) error {
	err := s.store.WithSession(ctx, func(sess *store.Session) error {
		user, err := s.ensureUser(ctx, sess, externalID, displayName)
		if err != nil {
			return err
		}
		_, err = s.resolveActiveConversation(ctx, sess, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensuring user %q: %w", externalID, err)
	}
	return nil
}

// ensureUser fetches the user by external id, creating them on first contact.
// A concurrent first-contact turn can win the insert race; the losing insert
// surfaces as ErrConflict and is retried as a fetch.
func (s *Service) ensureUser(ctx context.Context, sess *store.Session, externalID, displayName string) (*store.User, error) {
	user, err := sess.UserByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		user, err = sess.CreateUser(ctx, externalID, displayName)
		if errors.Is(err, store.ErrConflict) {
			s.logger.Debug("lost user creation race, refetching", "external_id", externalID)
			return sess.UserByExternalID(ctx, externalID)
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("new user", "external_id", externalID)
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	if displayName != "" && displayName != user.DisplayName {
		if err := sess.UpdateDisplayName(ctx, user.ID, displayName); err != nil {
			return nil, err
		}
		user.DisplayName = displayName
	}
	return user, nil
}

// resolveActiveConversation applies the rotation policy. The current active
// conversation comes from the user's pointer, or from a search when the
// pointer is nil, dangling, or references a closed conversation. Whichever
// way it was found, a conversation at the message cap is closed and replaced
// with a fresh one; with no active conversation at all, one is started.
func (s *Service) resolveActiveConversation(ctx context.Context, sess *store.Session, user *store.User) (*store.Conversation, error) {
	conv, err := s.currentConversation(ctx, sess, user)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return s.startConversation(ctx, sess, user)
	}

	count, err := sess.CountMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if count < MaxMessagesPerConversation {
		return conv, nil
	}

	if err := sess.CloseConversation(ctx, conv.ID); err != nil {
		return nil, err
	}
	s.logger.Info("rotated conversation", "user_id", user.ID, "closed_id", conv.ID, "messages", count)
	return s.startConversation(ctx, sess, user)
}

// currentConversation finds the user's active conversation without judging
// its size: the pointer if it references an active conversation, otherwise
// the most recently created active one. Returns nil when the user has no
// active conversation.
func (s *Service) currentConversation(ctx context.Context, sess *store.Session, user *store.User) (*store.Conversation, error) {
	if user.ActiveConversationID != nil {
		conv, err := sess.ConversationByID(ctx, *user.ActiveConversationID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Dangling pointer; fall through to the search below.
		case err != nil:
			return nil, err
		case conv.Status == store.ConversationActive:
			return conv, nil
		}
	}

	conv, err := sess.LatestActiveConversation(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// startConversation creates a fresh active conversation and repoints the
// user's active-conversation pointer at it.
func (s *Service) startConversation(ctx context.Context, sess *store.Session, user *store.User) (*store.Conversation, error) {
	conv, err := sess.CreateConversation(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.SetActiveConversation(ctx, user.ID, conv.ID); err != nil {
		return nil, err
	}
	user.ActiveConversationID = &conv.ID
	return conv, nil
}

// generate invokes the reply generator with a bounded timeout. Any failure,
// including timeout, degrades to the fallback reply.
func (s *Service) generate(ctx context.Context, input []llm.Message) string {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.generator.Generate(genCtx, input, s.tools)
	if err != nil {
		s.logger.Error("reply generation failed", "error", err)
		return FallbackReply
	}
	return reply
}
