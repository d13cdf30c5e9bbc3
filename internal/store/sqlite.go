// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/agent/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('single', 'group', 'broadcast_room')),
			title TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated
			ON conversations(owner_id, updated_at);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			provider_kind TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_agents (
			conversation_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, agent_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_kind TEXT NOT NULL CHECK (sender_kind IN ('human', 'agent')),
			sender_id TEXT,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a new conversation and its agent member rows.
// Returns ErrDuplicateConversation if the ID already exists.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, title, background, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID,
		string(conv.Kind),
		conv.Title,
		conv.Background,
		conv.OwnerID,
		conv.CreatedAt.UnixNano(),
		conv.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for i, agentID := range conv.AgentIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_agents (conversation_id, agent_id, position)
			VALUES (?, ?, ?)`,
			conv.ID, agentID, i,
		)
		if err != nil {
			return fmt.Errorf("inserting conversation agent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "kind", conv.Kind)
	return nil
}

// GetConversation retrieves a conversation and its ordered agent member set
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv := &Conversation{}
	var kind string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, title, background, owner_id, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &kind, &conv.Title, &conv.Background, &conv.OwnerID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Kind = ConversationKind(kind)
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id FROM conversation_agents
		WHERE conversation_id = ?
		ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation agents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("scanning agent_id: %w", err)
		}
		conv.AgentIDs = append(conv.AgentIDs, agentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation agents: %w", err)
	}

	return conv, nil
}

// ListConversations returns conversations for an owner, most recently updated first.
// An empty ownerID lists all conversations.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, title, background, owner_id, created_at, updated_at
		FROM conversations`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		var kind string
		var createdAt, updatedAt int64
		if err := rows.Scan(&conv.ID, &kind, &conv.Title, &conv.Background, &conv.OwnerID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conv.Kind = ConversationKind(kind)
		conv.CreatedAt = time.Unix(0, createdAt)
		conv.UpdatedAt = time.Unix(0, updatedAt)
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

// TouchConversation bumps updated_at. Safe for lock-free concurrent callers:
// timestamps are unix nanoseconds, so the guarded update keeps updated_at
// monotonic no matter how commits interleave. updated_at is a display hint,
// not a correctness-bearing field.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at < ?`,
		at.UnixNano(), id, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Either the row is missing or it already carries a newer timestamp
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}
	return nil
}

// CreateAgent inserts a new agent. Returns ErrDuplicateAgent if the ID exists.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, display_name, system_prompt, provider_kind, avatar_url, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID,
		agent.DisplayName,
		agent.SystemPrompt,
		agent.ProviderKind,
		agent.AvatarURL,
		agent.OwnerID,
		agent.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("agent created", "agent_id", agent.ID, "display_name", agent.DisplayName)
	return nil
}

// GetAgent retrieves an agent by ID
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	agent := &Agent{}
	var createdAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, system_prompt, provider_kind, avatar_url, owner_id, created_at
		FROM agents WHERE id = ?`, id,
	).Scan(&agent.ID, &agent.DisplayName, &agent.SystemPrompt, &agent.ProviderKind, &agent.AvatarURL, &agent.OwnerID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	agent.CreatedAt = time.Unix(0, createdAt)
	return agent, nil
}

// ListAgents returns all agents ordered by creation time
func (s *SQLiteStore) ListAgents(ctx context.Context, limit int) ([]*Agent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, system_prompt, provider_kind, avatar_url, owner_id, created_at
		FROM agents ORDER BY created_at LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent := &Agent{}
		var createdAt int64
		if err := rows.Scan(&agent.ID, &agent.DisplayName, &agent.SystemPrompt, &agent.ProviderKind, &agent.AvatarURL, &agent.OwnerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agent.CreatedAt = time.Unix(0, createdAt)
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}

	return agents, nil
}

// SaveMessage appends one immutable message row
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	var senderID any
	if msg.SenderID != "" {
		senderID = msg.SenderID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_kind, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		string(msg.SenderKind),
		senderID,
		msg.Content,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message saved",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender_kind", msg.SenderKind,
	)
	return nil
}

// ListRecentMessages returns the most recent messages for a conversation in
// oldest-first order. Insertion order (rowid) breaks created_at ties so the
// log order is stable under concurrent appends.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_kind, sender_id, content, created_at FROM (
			SELECT rowid, id, conversation_id, sender_kind, sender_id, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at, rowid`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var senderKind string
		var createdAt int64
		var senderID sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &senderKind, &senderID, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.SenderKind = SenderKind(senderKind)
		if senderID.Valid {
			msg.SenderID = senderID.String
		}
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
