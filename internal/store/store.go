// ABOUTME: Store interface and data types for chat-orchestrator persistence
// ABOUTME: Defines Conversation, Agent, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrDuplicateAgent is returned when trying to create an agent that already exists
var ErrDuplicateAgent = errors.New("agent already exists")

// ConversationKind describes how many agents participate and who can see the conversation
type ConversationKind string

const (
	// KindSingle is a one-user, one-agent conversation
	KindSingle ConversationKind = "single"
	// KindGroup is a one-user, many-agent conversation
	KindGroup ConversationKind = "group"
	// KindBroadcastRoom is the shared room visible to all connected participants
	KindBroadcastRoom ConversationKind = "broadcast_room"
)

// SenderKind distinguishes human-authored messages from agent-authored ones
type SenderKind string

const (
	SenderHuman SenderKind = "human"
	SenderAgent SenderKind = "agent"
)

// Conversation is the durable container for an ordered message log.
// UpdatedAt is bumped on every committed message; it is a display hint,
// last-writer-wins under concurrent commits.
type Conversation struct {
	ID         string
	Kind       ConversationKind
	Title      string
	Background string
	OwnerID    string
	AgentIDs   []string // ordered member set; empty for single-agent chat, where the caller names the agent per request
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Agent is a configured AI persona: a prompt plus a model-family binding.
type Agent struct {
	ID           string
	DisplayName  string
	SystemPrompt string
	ProviderKind string
	AvatarURL    string
	OwnerID      string
	CreatedAt    time.Time
}

// Message is one immutable row in a conversation's append-only log.
// SenderID is empty for human messages. CreatedAt is assigned at persistence
// time; log order is insertion order, not dispatch order.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderKind     SenderKind `json:"senderKind"`
	SenderID       string     `json:"senderId,omitempty"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Store defines the interface for conversation, agent, and message persistence.
// Concurrent appends to the same conversation are safe: each writer owns
// disjoint message rows, and TouchConversation tolerates lock-free racing.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context, limit int) ([]*Agent, error)

	// Messages (append-only)
	SaveMessage(ctx context.Context, msg *Message) error
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
