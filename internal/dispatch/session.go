// ABOUTME: Ephemeral per-execution stream session and its state machine
// ABOUTME: Waiting -> Streaming -> {Complete | Failed}, destroyed at finalization

package dispatch

import (
	"strings"
)

// SessionState is the per-agent execution state.
type SessionState string

const (
	// StateWaiting: dispatch accepted, upstream not yet producing content.
	StateWaiting SessionState = "waiting"
	// StateStreaming: at least one delta received; buffer grows monotonically.
	StateStreaming SessionState = "streaming"
	// StateComplete: provider signaled done; buffer committed as a Message.
	StateComplete SessionState = "complete"
	// StateFailed: provider failed; accumulated content is discarded, never
	// persisted.
	StateFailed SessionState = "failed"
)

// streamSession tracks one agent execution within one dispatch cycle. It is
// owned by a single goroutine, lives only for the cycle, and is garbage on
// process restart; no recovery is attempted for in-flight sessions.
type streamSession struct {
	correlationID  string
	conversationID string
	agentID        string
	state          SessionState
	buffer         strings.Builder
}

func newStreamSession(correlationID, conversationID, agentID string) *streamSession {
	return &streamSession{
		correlationID:  correlationID,
		conversationID: conversationID,
		agentID:        agentID,
		state:          StateWaiting,
	}
}

// append records a delta and moves Waiting -> Streaming on the first one.
func (s *streamSession) append(delta string) {
	s.buffer.WriteString(delta)
	if s.state == StateWaiting {
		s.state = StateStreaming
	}
}

func (s *streamSession) text() string {
	return s.buffer.String()
}
