// ABOUTME: Tagged event types flowing from agent executions to transport bindings
// ABOUTME: Every event is scoped by an ephemeral correlation id

package dispatch

import (
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// EventKind discriminates the unified stream's event payloads.
type EventKind string

const (
	// EventTyping signals dispatch was accepted for an agent and its reply is
	// pending (the Waiting state, surfaced as a typing indicator).
	EventTyping EventKind = "typing"
	// EventDelta carries one incremental text fragment.
	EventDelta EventKind = "delta"
	// EventComplete carries the committed Message for a finished agent.
	EventComplete EventKind = "complete"
	// EventError reports a failure scoped to one agent's execution.
	EventError EventKind = "error"
)

// Event is one tagged item on the unified dispatch stream. CorrelationID is
// ephemeral per execution, not the permanent agent id: the same agent could
// in principle be dispatched twice concurrently, and consumers demultiplex
// purely by correlation id.
type Event struct {
	Kind          EventKind
	CorrelationID string
	AgentID       string
	AgentName     string
	AvatarURL     string

	Delta   string         // EventDelta
	Message *store.Message // EventComplete: the canonical persisted row
	Err     string         // EventError
}
