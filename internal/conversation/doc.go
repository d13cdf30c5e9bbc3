// Package conversation provides message finalization and room broadcasting.
//
// # Service
//
// The Service is the persistence finalizer for dispatch cycles:
//
//   - RecordUserMessage(ctx, conversationID, content): persist the human
//     turn before any agent is contacted (record first, then act)
//   - Commit(ctx, conversationID, agentID, content): append one finished
//     agent reply and bump conversation metadata
//   - History(ctx, conversationID, limit): the committed log, oldest-first
//
// Commits for different agents of the same conversation run concurrently
// without coordination: each writes its own message row, and the updated_at
// touch is monotonic so interleaving cannot move it backwards.
//
// # Broadcaster
//
// The Broadcaster fans RoomEvents out to every subscriber of a shared-room
// conversation. It backs the broadcast transport binding: agent-typing,
// agent-delta, agent-complete, and agent-error frames reach all connected
// participants, tagged by correlation id. Delivery is best-effort per
// subscriber; a full subscriber channel drops the event rather than
// stalling the room.
package conversation
