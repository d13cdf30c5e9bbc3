// Package dispatch is the concurrency core of the orchestrator.
//
// One dispatch cycle fans a user message out to N independently-configured
// agent executions. Each execution builds its own context window, opens its
// own upstream provider stream, and owns an ephemeral stream session with a
// Waiting -> Streaming -> {Complete | Failed} state machine. The merged
// result is a single tagged event stream consumed by a transport binding.
//
// # Isolation
//
// Failure, timeout, or malformed output from one agent's execution has zero
// effect on any other execution or on already-persisted messages. There is
// no shared mutable state across executions except the append-only message
// store: each execution owns exactly one message row it will eventually
// write, and conversation metadata updates are last-writer-wins.
//
// Isolation extends to the transport edge. Each execution writes through its
// own buffered relay channel and fan-in goroutines merge the relays into the
// consumer-facing stream, so a slow consumer parks a fan-in goroutine rather
// than an execution. Non-terminal events may be dropped after a bounded wait
// when an execution's own relay stays full; Complete and Error events wait
// longer and are never dropped for backpressure alone.
//
// # Ordering
//
// Within one correlation id, deltas are relayed in the order the provider
// produced them. Across correlation ids nothing is guaranteed: a fast agent
// may complete and persist before a slower one that was dispatched at the
// same instant.
//
// # Failure handling
//
// A Failed execution persists nothing, even when it had already streamed
// partial content. A Complete execution commits its accumulated buffer on a
// detached context, so caller disconnect after generation finished does not
// lose the reply. A persistence failure at commit time is the one condition
// escalated as a system-level error.
package dispatch
