// ABOUTME: Transaction-scoped data access over one SQLite transaction
// ABOUTME: WithSession is the unit of work: commit on success, rollback on error, always released

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// timeFormat is how timestamps are stored. Nanosecond precision keeps the
// per-conversation message order total even when two writes land in the
// same second; ties are broken by the autoincrement id.
const timeFormat = time.RFC3339Nano

// Session exposes the store operations of one transaction. Writes are staged:
// they are visible to later reads in the same session (and generated ids are
// returned immediately on insert) but become durable only when the enclosing
// WithSession call commits.
type Session struct {
	tx     *sql.Tx
	logger *slog.Logger
}

// WithSession runs fn inside a single transaction. If fn returns nil the
// transaction is committed; any error rolls it back. The transaction is
// released on every path. Callers never commit themselves, and sessions must
// not be nested or shared across logical operations.
func (s *SQLiteStore) WithSession(ctx context.Context, fn func(*Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback after a successful commit is a no-op; this guarantees release
	// on panic and early return alike.
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Session{tx: tx, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// UserByExternalID retrieves a user by their external (Telegram) identifier.
// Returns ErrNotFound if no such user exists.
func (sess *Session) UserByExternalID(ctx context.Context, externalID string) (*User, error) {
	query := `
		SELECT id, external_id, display_name, active_conversation_id
		FROM users
		WHERE external_id = ?
	`
	return sess.scanUser(sess.tx.QueryRowContext(ctx, query, externalID))
}

func (sess *Session) scanUser(row *sql.Row) (*User, error) {
	var user User
	var displayName sql.NullString
	var activeID sql.NullInt64

	err := row.Scan(&user.ID, &user.ExternalID, &displayName, &activeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if displayName.Valid {
		user.DisplayName = displayName.String
	}
	if activeID.Valid {
		user.ActiveConversationID = &activeID.Int64
	}
	return &user, nil
}

// CreateUser inserts a new user. The generated id is available on the
// returned value immediately, before the session commits.
// Returns ErrConflict if a user with the same external id already exists.
func (sess *Session) CreateUser(ctx context.Context, externalID, displayName string) (*User, error) {
	query := `INSERT INTO users (external_id, display_name) VALUES (?, ?)`

	result, err := sess.tx.ExecContext(ctx, query, externalID, nullString(displayName))
	if err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("user %q: %w", externalID, ErrConflict)
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	sess.logger.Debug("created user", "id", id, "external_id", externalID)
	return &User{ID: id, ExternalID: externalID, DisplayName: displayName}, nil
}

// UpdateDisplayName sets a user's display name.
// Returns ErrNotFound if the user doesn't exist.
func (sess *Session) UpdateDisplayName(ctx context.Context, userID int64, displayName string) error {
	result, err := sess.tx.ExecContext(ctx,
		`UPDATE users SET display_name = ? WHERE id = ?`,
		nullString(displayName), userID,
	)
	if err != nil {
		return fmt.Errorf("updating display name: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	sess.logger.Debug("updated display name", "user_id", userID)
	return nil
}

// SetActiveConversation repoints a user's active-conversation pointer.
// Returns ErrNotFound if the user doesn't exist.
func (sess *Session) SetActiveConversation(ctx context.Context, userID, conversationID int64) error {
	result, err := sess.tx.ExecContext(ctx,
		`UPDATE users SET active_conversation_id = ? WHERE id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("updating active conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	sess.logger.Debug("repointed active conversation", "user_id", userID, "conversation_id", conversationID)
	return nil
}

// ConversationByID retrieves a conversation by id.
// Returns ErrNotFound if the conversation doesn't exist.
func (sess *Session) ConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	query := `
		SELECT id, user_id, status, created_at
		FROM conversations
		WHERE id = ?
	`
	return sess.scanConversation(sess.tx.QueryRowContext(ctx, query, id))
}

// LatestActiveConversation retrieves the most recently created active
// conversation of a user. Returns ErrNotFound if the user has none.
func (sess *Session) LatestActiveConversation(ctx context.Context, userID int64) (*Conversation, error) {
	query := `
		SELECT id, user_id, status, created_at
		FROM conversations
		WHERE user_id = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`
	return sess.scanConversation(sess.tx.QueryRowContext(ctx, query, userID, ConversationActive))
}

func (sess *Session) scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var createdAtStr string

	err := row.Scan(&conv.ID, &conv.UserID, &conv.Status, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts a new active conversation for a user.
// The generated id is available on the returned value immediately.
func (sess *Session) CreateConversation(ctx context.Context, userID int64) (*Conversation, error) {
	now := time.Now().UTC()
	result, err := sess.tx.ExecContext(ctx,
		`INSERT INTO conversations (user_id, status, created_at) VALUES (?, ?, ?)`,
		userID, ConversationActive, now.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting conversation id: %w", err)
	}

	sess.logger.Debug("created conversation", "id", id, "user_id", userID)
	return &Conversation{ID: id, UserID: userID, Status: ConversationActive, CreatedAt: now}, nil
}

// CloseConversation marks a conversation closed. Closed conversations are
// never reopened. Returns ErrNotFound if the conversation doesn't exist.
func (sess *Session) CloseConversation(ctx context.Context, id int64) error {
	result, err := sess.tx.ExecContext(ctx,
		`UPDATE conversations SET status = ? WHERE id = ?`,
		ConversationClosed, id,
	)
	if err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	sess.logger.Debug("closed conversation", "id", id)
	return nil
}

// CountMessages returns the number of messages in a conversation.
func (sess *Session) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := sess.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// InsertMessage appends a message to a conversation. The generated id is
// available on the returned value immediately.
func (sess *Session) InsertMessage(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	now := time.Now().UTC()
	result, err := sess.tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, now.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}

	sess.logger.Debug("inserted message", "id", id, "conversation_id", conversationID, "role", role)
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}, nil
}

// LastMessages retrieves the most recent `limit` messages of a conversation
// in chronological order (oldest first). If limit is 0 or negative, all
// messages are returned.
func (sess *Session) LastMessages(ctx context.Context, conversationID int64, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, but return them in chronological
		// order. A subquery picks the most recent N, the outer query flips them.
		query = `
			SELECT id, conversation_id, role, content, created_at
			FROM (
				SELECT id, conversation_id, role, content, created_at
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, id ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at ASC, id ASC
		`
		args = []any{conversationID}
	}

	rows, err := sess.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}
