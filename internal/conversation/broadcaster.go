// ABOUTME: In-memory fan-out broadcaster for the shared-room transport binding
// ABOUTME: Publishes room events to all subscribers of a conversation

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// RoomEvent is one broadcast-channel frame. Type selects which optional
// fields are populated; consumers demultiplex agent events purely by
// CorrelationID.
type RoomEvent struct {
	Type string `json:"type"` // "user-message", "agent-typing", "agent-delta", "agent-complete", "agent-error"

	CorrelationID string `json:"correlationId,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	AgentName     string `json:"agentName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`

	Content string         `json:"content,omitempty"` // agent-delta
	Error   string         `json:"error,omitempty"`   // agent-error
	Message *store.Message `json:"message,omitempty"` // user-message, agent-complete
}

// Room event types published to all subscribers.
const (
	RoomUserMessage   = "user-message"
	RoomAgentTyping   = "agent-typing"
	RoomAgentDelta    = "agent-delta"
	RoomAgentComplete = "agent-complete"
	RoomAgentError    = "agent-error"
)

// Broadcaster provides in-memory pub/sub for room events. Subscribers
// register for a conversation id and receive every event published to it;
// this is how all connected participants of the shared room see every
// agent's reply as it streams.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *RoomEvent // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *RoomEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given conversation.
// Returns a channel that receives events and a subscription ID. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *RoomEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *RoomEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *RoomEvent)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given conversation.
// Non-blocking: events are dropped for subscribers whose channels are full,
// so one slow room participant never stalls the others.
func (b *Broadcaster) Publish(conversationID string, event *RoomEvent) {
	b.mu.RLock()
	subs, ok := b.subscribers[conversationID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding it during sends
	targets := make([]chan *RoomEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", conversationID,
				"type", event.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// SubscriberCount reports how many subscribers a conversation currently has.
func (b *Broadcaster) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
