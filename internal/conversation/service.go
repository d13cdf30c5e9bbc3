// ABOUTME: Finalization layer committing finished replies to the message log
// ABOUTME: All durable writes flow through here - the log is the source of truth

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// Service owns message persistence for dispatch cycles: the human turn at
// the start, and each agent's finished reply at finalization. Safe to call
// concurrently for different agents of the same conversation; each commit
// writes its own message row and the metadata touch is monotonic.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a Service. Pass nil logger for the default.
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// Commit appends one agent message with a server-assigned id and timestamp,
// then bumps the conversation's updated_at. The returned Message is the
// canonical row callers should render in place of any locally-buffered
// preview.
func (s *Service) Commit(ctx context.Context, conversationID, agentID, content string) (*store.Message, error) {
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderKind:     store.SenderAgent,
		SenderID:       agentID,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving agent message: %w", err)
	}

	s.touch(ctx, conversationID, msg.CreatedAt)

	s.logger.Debug("agent reply committed",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"agent_id", agentID)
	return msg, nil
}

// RecordUserMessage persists the human turn that triggers a dispatch cycle.
// Record first, then act: the user message is durable before any agent is
// contacted.
func (s *Service) RecordUserMessage(ctx context.Context, conversationID, content string) (*store.Message, error) {
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderKind:     store.SenderHuman,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	s.touch(ctx, conversationID, msg.CreatedAt)

	s.logger.Debug("user message recorded",
		"message_id", msg.ID,
		"conversation_id", conversationID)
	return msg, nil
}

// History returns the most recent messages for a conversation, oldest-first.
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]*store.Message, error) {
	return s.store.ListRecentMessages(ctx, conversationID, limit)
}

// touch bumps conversation metadata. A touch failure is logged, not
// returned: the message itself is already durable and updated_at is only a
// display hint.
func (s *Service) touch(ctx context.Context, conversationID string, at time.Time) {
	if err := s.store.TouchConversation(ctx, conversationID, at); err != nil {
		s.logger.Warn("failed to touch conversation",
			"error", err,
			"conversation_id", conversationID)
	}
}
