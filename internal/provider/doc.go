// Package provider wraps upstream AI HTTP endpoints behind one streaming client.
//
// A call takes provider-neutral turns plus a resolved Config and returns a
// lazy sequence of incremental text deltas. The two supported wire formats
// are the Chat Completions SSE protocol (openai and openai-compatible kinds)
// and the Anthropic Messages SSE protocol.
//
// # Failure model
//
// Stream distinguishes two failure classes:
//
//   - request-level failure (missing credentials, connect error, non-2xx):
//     returned as an error before any delta exists, so callers know nothing
//     partial was produced
//   - mid-stream failure: delivered as a terminal Err event on the channel
//
// Malformed individual "data:" records are skipped silently; one corrupted
// frame must not abort an otherwise healthy stream.
//
// The client makes a single attempt per call and threads the caller's
// context into the upstream request, so cancellation and per-request
// timeouts abort the upstream connection.
package provider
