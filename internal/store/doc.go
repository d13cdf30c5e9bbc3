// Package store provides persistent storage for the orchestrator using SQLite.
//
// # Data Models
//
//   - Conversation: durable container for an append-only message log, with a
//     kind (single, group, broadcast_room) and an ordered agent member set
//   - Agent: a configured AI persona (display name, system prompt, provider
//     family binding, avatar)
//   - Message: one immutable row in a conversation's log; ordering is
//     insertion order, not dispatch order
//
// # Concurrency
//
// The store is the only shared mutable resource across concurrent agent
// executions. It tolerates lock-free concurrent writers: each execution owns
// exactly one message row it will eventually write, and TouchConversation is
// last-writer-wins on a display-hint field.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation, ErrDuplicateAgent: ID collision on create
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
