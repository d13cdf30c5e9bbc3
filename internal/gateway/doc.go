// Package gateway owns the HTTP surface of chat-orchestrator.
//
// # Overview
//
// The gateway wires the store, the conversation service, and the dispatch
// layer behind two transport bindings over the same unified event stream:
//
//   - Scoped SSE: POST /api/conversations/{id}/ai-reply streams one dispatch
//     cycle back to the single caller as data-only SSE records. The request
//     context is threaded into the dispatch, so a caller disconnect aborts
//     the in-flight provider calls.
//
//   - Broadcast room: GET /api/rooms/{id}/ws accepts a websocket, subscribes
//     it to the room's broadcast stream, and turns inbound ai:request
//     commands into dispatch cycles whose events every subscriber sees. The
//     dispatch runs detached from the requesting socket.
//
// Both bindings demultiplex agent events purely by correlation id; event
// interleaving across agents is arbitrary.
//
// # Read-side endpoints
//
//   - GET /api/conversations/{id}/messages - committed history
//   - GET /api/agents - agent registry listing
//   - GET /healthz - liveness
//
// # Startup
//
// New builds the full component graph from config, applies the seed block
// (agents and the shared broadcast room), and registers all routes. Run
// serves until the context is canceled, then shuts down gracefully.
package gateway
