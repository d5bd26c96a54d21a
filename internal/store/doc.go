// Package store provides persistent storage for parley using SQLite.
//
// # Data Models
//
//   - User: one end-user, anchored by the unique Telegram external id, with
//     an optional display name and a nullable active-conversation pointer
//   - Conversation: one thread of messages owned by a user, active or closed
//   - Message: one append-only entry (user, assistant, or system role)
//
// # Transactions
//
// All access goes through a Session obtained from WithSession, which wraps
// one logical operation in exactly one transaction: commit on success,
// rollback on error, released on every path. Inserts return generated ids
// immediately, visible within the session before commit.
//
// # Schema
//
// The schema is created on open. users and conversations reference each
// other, so users.active_conversation_id is added by an idempotent migration
// after both tables exist. The unique index on users.external_id is what
// makes concurrent first-contact turns safe: the losing insert fails with
// ErrConflict and is retried as a fetch by the caller.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist (a create trigger for
//     callers, not a failure)
//   - ErrConflict: uniqueness constraint violated (retry as fetch)
//
// All methods accept context.Context for cancellation support.
package store
