// ABOUTME: Tests for the turn orchestrator
// ABOUTME: Covers first contact, context window, rotation at the cap, and fallback on generator failure

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/store"
)

// stubGenerator records the input of each call and returns a canned reply or
// error.
type stubGenerator struct {
	reply string
	err   error
	calls [][]llm.Message
}

func (g *stubGenerator) Generate(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (string, error) {
	g.calls = append(g.calls, messages)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func setupService(t *testing.T, gen llm.Generator) (*Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewService(st, gen, nil, time.Minute, slog.Default()), st
}

func userState(t *testing.T, st *store.SQLiteStore, externalID string) (*store.User, *store.Conversation, []*store.Message) {
	t.Helper()

	var user *store.User
	var conv *store.Conversation
	var msgs []*store.Message

	err := st.WithSession(context.Background(), func(sess *store.Session) error {
		var err error
		user, err = sess.UserByExternalID(context.Background(), externalID)
		if err != nil {
			return err
		}
		if user.ActiveConversationID == nil {
			return nil
		}
		conv, err = sess.ConversationByID(context.Background(), *user.ActiveConversationID)
		if err != nil {
			return err
		}
		msgs, err = sess.LastMessages(context.Background(), conv.ID, 0)
		return err
	})
	require.NoError(t, err)
	return user, conv, msgs
}

func TestProcessTurn_FirstContact(t *testing.T) {
	gen := &stubGenerator{reply: "hi there"}
	svc, st := setupService(t, gen)

	reply, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	user, conv, msgs := userState(t, st, "tg:100")
	assert.Equal(t, "Alice", user.DisplayName)
	require.NotNil(t, conv)
	assert.Equal(t, store.ConversationActive, conv.Status)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Content)
}

func TestProcessTurn_UpdatesDisplayName(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	_, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "one")
	require.NoError(t, err)
	_, err = svc.ProcessTurn(context.Background(), "tg:100", "Alicia", "two")
	require.NoError(t, err)

	user, _, _ := userState(t, st, "tg:100")
	assert.Equal(t, "Alicia", user.DisplayName)
}

func TestProcessTurn_ContextWindowOldestFirstCapped(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, _ := setupService(t, gen)

	// 8 turns persist 16 messages; the window cap is 12.
	for i := 0; i < 8; i++ {
		_, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", fmt.Sprintf("msg-%d", i))
		require.NoError(t, err)
	}

	last := gen.calls[len(gen.calls)-1]
	// 12 window messages plus the new user message.
	require.Len(t, last, ContextWindow+1)
	assert.Equal(t, "msg-7", last[len(last)-1].Content)

	// Oldest-first within the window, alternating user/assistant.
	assert.Equal(t, store.RoleUser, last[0].Role)
	assert.Equal(t, "msg-1", last[0].Content)
	assert.Equal(t, store.RoleAssistant, last[1].Role)
}

func TestProcessTurn_RotatesAtCap(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	_, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "first")
	require.NoError(t, err)
	_, firstConv, _ := userState(t, st, "tg:100")

	// Fill the first conversation up to the cap.
	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		for i := 0; i < MaxMessagesPerConversation-2; i++ {
			if _, err := sess.InsertMessage(context.Background(), firstConv.ID, store.RoleUser, "filler"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, err = svc.ProcessTurn(context.Background(), "tg:100", "Alice", "over the cap")
	require.NoError(t, err)

	user, conv, msgs := userState(t, st, "tg:100")
	require.NotNil(t, user.ActiveConversationID)
	assert.NotEqual(t, firstConv.ID, conv.ID, "a new conversation should be active")
	assert.Equal(t, store.ConversationActive, conv.Status)

	// Both messages of the rotating turn land in the new conversation.
	require.Len(t, msgs, 2)
	assert.Equal(t, "over the cap", msgs[0].Content)

	// The old conversation is closed and untouched by the new turn.
	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		old, err := sess.ConversationByID(context.Background(), firstConv.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, store.ConversationClosed, old.Status)
		count, err := sess.CountMessages(context.Background(), firstConv.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, MaxMessagesPerConversation, count)
		return nil
	})
	require.NoError(t, err)
}

func TestProcessTurn_NoRotationBelowCap(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	_, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "first")
	require.NoError(t, err)
	_, firstConv, _ := userState(t, st, "tg:100")

	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		for i := 0; i < MaxMessagesPerConversation-3; i++ {
			if _, err := sess.InsertMessage(context.Background(), firstConv.ID, store.RoleUser, "filler"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, err = svc.ProcessTurn(context.Background(), "tg:100", "Alice", "still fits")
	require.NoError(t, err)

	_, conv, _ := userState(t, st, "tg:100")
	assert.Equal(t, firstConv.ID, conv.ID, "conversation below the cap should not rotate")
}

func TestProcessTurn_FallbackOnGeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream exploded")}
	svc, st := setupService(t, gen)

	reply, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	// Both sides of the turn are still persisted.
	_, _, msgs := userState(t, st, "tg:100")
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, FallbackReply, msgs[1].Content)
}

func TestEnsureUserAndConversation_Idempotent(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	require.NoError(t, svc.EnsureUserAndConversation(context.Background(), "tg:100", "Alice"))
	_, first, msgs := userState(t, st, "tg:100")
	require.NotNil(t, first)
	assert.Empty(t, msgs)

	require.NoError(t, svc.EnsureUserAndConversation(context.Background(), "tg:100", "Alice"))
	_, second, _ := userState(t, st, "tg:100")
	assert.Equal(t, first.ID, second.ID)
}

func TestProcessTurn_RotatesFullConversationFoundBySearch(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	// A user whose pointer was never set, with an active conversation already
	// at the cap. The search path must apply the same rotation check the
	// pointer path does.
	var fullConv *store.Conversation
	err := st.WithSession(context.Background(), func(sess *store.Session) error {
		user, err := sess.CreateUser(context.Background(), "tg:100", "Alice")
		if err != nil {
			return err
		}
		fullConv, err = sess.CreateConversation(context.Background(), user.ID)
		if err != nil {
			return err
		}
		for i := 0; i < MaxMessagesPerConversation; i++ {
			if _, err := sess.InsertMessage(context.Background(), fullConv.ID, store.RoleUser, "filler"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, err = svc.ProcessTurn(context.Background(), "tg:100", "Alice", "over the cap")
	require.NoError(t, err)

	user, conv, msgs := userState(t, st, "tg:100")
	require.NotNil(t, user.ActiveConversationID)
	assert.NotEqual(t, fullConv.ID, conv.ID, "a full conversation found by search must rotate")
	require.Len(t, msgs, 2)
	assert.Equal(t, "over the cap", msgs[0].Content)

	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		old, err := sess.ConversationByID(context.Background(), fullConv.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, store.ConversationClosed, old.Status)
		count, err := sess.CountMessages(context.Background(), fullConv.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, MaxMessagesPerConversation, count, "closed conversation receives none of the turn's writes")
		return nil
	})
	require.NoError(t, err)
}

func TestProcessTurn_RecoversDanglingPointerViaSearch(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc, st := setupService(t, gen)

	_, err := svc.ProcessTurn(context.Background(), "tg:100", "Alice", "first")
	require.NoError(t, err)
	_, conv, _ := userState(t, st, "tg:100")

	// Point the user at a conversation id that does not exist.
	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		user, err := sess.UserByExternalID(context.Background(), "tg:100")
		if err != nil {
			return err
		}
		return sess.SetActiveConversation(context.Background(), user.ID, conv.ID+9999)
	})
	require.Error(t, err) // FK constraint rejects a dangling id outright

	// Close the conversation instead to exercise the non-active pointer path.
	err = st.WithSession(context.Background(), func(sess *store.Session) error {
		return sess.CloseConversation(context.Background(), conv.ID)
	})
	require.NoError(t, err)

	_, err = svc.ProcessTurn(context.Background(), "tg:100", "Alice", "second")
	require.NoError(t, err)

	_, newConv, _ := userState(t, st, "tg:100")
	assert.NotEqual(t, conv.ID, newConv.ID)
	assert.Equal(t, store.ConversationActive, newConv.Status)
}
