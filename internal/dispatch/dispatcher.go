// ABOUTME: Concurrency core fanning one user message out to N agent executions
// ABOUTME: Yields a unified tagged event stream; one agent's failure never touches another's

package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenpress/chat-orchestrator/internal/prompt"
	"github.com/lumenpress/chat-orchestrator/internal/provider"
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

const (
	// mergedBufferSize is the channel buffer for the consumer-facing merged
	// stream.
	mergedBufferSize = 64
	// relayBufferSize is the channel buffer each agent execution owns. A slow
	// consumer fills the merged stream first, then individual relays; it never
	// stalls another agent's execution through a shared channel.
	relayBufferSize = 64
	// sendTimeout bounds how long a full relay can stall its own execution
	// before a non-terminal event is dropped.
	sendTimeout = 5 * time.Second
	// terminalSendTimeout bounds the wait for Complete and Error events, which
	// are never dropped for backpressure alone.
	terminalSendTimeout = 30 * time.Second
	// commitTimeout bounds finalization. Commits run on a detached context so
	// a caller disconnect cannot lose a fully-generated reply.
	commitTimeout = 5 * time.Second
)

// Streamer is what the dispatcher needs from the provider layer.
type Streamer interface {
	Stream(ctx context.Context, req provider.Request) (<-chan provider.Event, error)
}

// Finalizer commits a finished reply to durable storage.
type Finalizer interface {
	Commit(ctx context.Context, conversationID, agentID, content string) (*store.Message, error)
}

// HistorySource supplies the bounded message window and display names for
// context assembly.
type HistorySource interface {
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
}

// Options tune a Dispatcher.
type Options struct {
	// HistoryWindow is the number of most recent messages assembled into each
	// agent's context. Defaults to 30.
	HistoryWindow int
	// ProviderTimeout bounds each agent's upstream call so one unresponsive
	// provider cannot hold an execution open indefinitely. Defaults to 2m.
	ProviderTimeout time.Duration
}

// Dispatcher fans a dispatch cycle out to independent concurrent agent
// executions. The only shared mutable state across executions is the
// append-only message store, which tolerates uncoordinated concurrent
// appends; everything else is per-session.
type Dispatcher struct {
	streamer  Streamer
	finalizer Finalizer
	history   HistorySource
	opts      Options
	logger    *slog.Logger

	sendTimeout     time.Duration
	terminalTimeout time.Duration
}

// New creates a Dispatcher. Pass nil logger for the default.
func New(streamer Streamer, finalizer Finalizer, history HistorySource, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 30
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		streamer:        streamer,
		finalizer:       finalizer,
		history:         history,
		opts:            opts,
		logger:          logger.With("component", "dispatch"),
		sendTimeout:     sendTimeout,
		terminalTimeout: terminalSendTimeout,
	}
}

// Dispatch starts one independent execution per participating agent and
// returns the merged tagged event stream. Each execution writes through its
// own buffered relay channel; fan-in goroutines merge the relays, so
// backpressure on the merged stream parks a fan-in, not another agent's
// execution. The channel closes once every agent reached a terminal state.
// No cross-agent ordering is guaranteed: within one correlation id delta
// order is preserved, across ids events interleave arbitrarily.
//
// ctx is threaded into every upstream provider call, so cancelling it aborts
// in-flight upstream requests. Finalization runs on a detached context.
func (d *Dispatcher) Dispatch(ctx context.Context, conv *store.Conversation, agents []*store.Agent, configs map[string]provider.Config) <-chan *Event {
	out := make(chan *Event, mergedBufferSize)

	// One shared read-only history snapshot; each execution derives its own
	// attribution from it.
	history, err := d.history.ListRecentMessages(ctx, conv.ID, d.opts.HistoryWindow)
	if err != nil {
		d.logger.Error("failed to load history for dispatch",
			"conversation_id", conv.ID,
			"error", err)
		history = nil
	}
	names := d.displayNames(ctx, history, agents)

	var fanIn sync.WaitGroup
	for _, agent := range agents {
		relay := make(chan *Event, relayBufferSize)

		go func(agent *store.Agent, relay chan *Event) {
			defer close(relay)
			d.runAgent(ctx, relay, conv, agent, history, names, configs[agent.ID])
		}(agent, relay)

		fanIn.Add(1)
		go func(relay <-chan *Event) {
			defer fanIn.Done()
			d.forward(ctx, relay, out)
		}(relay)
	}

	go func() {
		fanIn.Wait()
		close(out)
	}()

	return out
}

// forward drains one agent's relay into the merged stream. A full merged
// stream parks this goroutine and lets the relay buffer absorb the
// execution's output; once the caller is gone only terminal events are still
// worth a best-effort delivery.
func (d *Dispatcher) forward(ctx context.Context, relay <-chan *Event, out chan<- *Event) {
	for ev := range relay {
		select {
		case out <- ev:
		case <-ctx.Done():
			if ev.Kind == EventComplete || ev.Kind == EventError {
				select {
				case out <- ev:
				default:
				}
			}
		}
	}
}

// runAgent drives one agent execution through its state machine. Failures
// here are scoped to this session only.
func (d *Dispatcher) runAgent(ctx context.Context, relay chan<- *Event, conv *store.Conversation, agent *store.Agent, history []*store.Message, names map[string]string, cfg provider.Config) {
	session := newStreamSession(uuid.New().String(), conv.ID, agent.ID)
	logger := d.logger.With(
		"correlation_id", session.correlationID,
		"agent_id", agent.ID,
		"conversation_id", conv.ID,
	)

	tag := func(ev *Event) *Event {
		ev.CorrelationID = session.correlationID
		ev.AgentID = agent.ID
		ev.AgentName = agent.DisplayName
		ev.AvatarURL = agent.AvatarURL
		return ev
	}

	fail := func(msg string) {
		session.state = StateFailed
		d.send(ctx, relay, tag(&Event{Kind: EventError, Err: msg}), logger)
	}

	// Waiting state is surfaced immediately as a typing signal
	d.send(ctx, relay, tag(&Event{Kind: EventTyping}), logger)

	if cfg.Kind == "" {
		kind, err := provider.ParseKind(agent.ProviderKind)
		if err != nil {
			// Configuration error: surfaced before this agent's provider is
			// contacted, other agents unaffected
			logger.Warn("agent has no usable provider config", "error", err)
			fail("no provider configuration for agent " + agent.DisplayName)
			return
		}
		cfg.Kind = kind
	}

	provCtx, cancel := context.WithTimeout(ctx, d.opts.ProviderTimeout)
	defer cancel()

	events, err := d.streamer.Stream(provCtx, provider.Request{
		Turns:        prompt.Build(history, agent.ID, names),
		SystemPrompt: agent.SystemPrompt,
		Config:       cfg,
	})
	if err != nil {
		// Request-level failure: no deltas were produced, nothing to persist
		logger.Warn("provider request failed", "error", err)
		fail(err.Error())
		return
	}

	for ev := range events {
		switch {
		case ev.Err != nil:
			// Partial replies are never persisted; the buffer dies with the
			// session
			logger.Warn("provider stream failed mid-flight",
				"error", ev.Err,
				"buffered_bytes", session.buffer.Len())
			fail(ev.Err.Error())
			return

		case ev.Done:
			d.finalize(ctx, relay, session, tag, logger)
			return

		default:
			session.append(ev.Delta)
			d.send(ctx, relay, tag(&Event{Kind: EventDelta, Delta: ev.Delta}), logger)
		}
	}

	// Channel closed without a terminal event; treat as done
	d.finalize(ctx, relay, session, tag, logger)
}

// finalize commits the accumulated buffer and emits the terminal event.
func (d *Dispatcher) finalize(ctx context.Context, relay chan<- *Event, session *streamSession, tag func(*Event) *Event, logger *slog.Logger) {
	commitCtx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	msg, err := d.finalizer.Commit(commitCtx, session.conversationID, session.agentID, session.text())
	if err != nil {
		// The one system-level error: a fully-generated reply was lost
		logger.Error("failed to persist completed reply",
			"error", err,
			"content_bytes", session.buffer.Len())
		session.state = StateFailed
		d.send(ctx, relay, tag(&Event{Kind: EventError, Err: "failed to persist reply"}), logger)
		return
	}

	session.state = StateComplete
	d.send(ctx, relay, tag(&Event{Kind: EventComplete, Message: msg}), logger)
}

// send puts an event on this execution's relay. Non-terminal events are
// droppable under sustained backpressure; terminal events get a longer
// bounded wait because the consumer keys session bookkeeping off them.
func (d *Dispatcher) send(ctx context.Context, relay chan<- *Event, ev *Event, logger *slog.Logger) {
	if ev.Kind == EventComplete || ev.Kind == EventError {
		select {
		case relay <- ev:
		case <-time.After(d.terminalTimeout):
			logger.Error("relay wedged, dropping terminal event", "kind", ev.Kind)
		}
		return
	}

	select {
	case relay <- ev:
	case <-time.After(d.sendTimeout):
		logger.Warn("relay full, dropping event", "kind", ev.Kind)
	case <-ctx.Done():
	}
}

// displayNames resolves display names for every agent that appears in the
// history or the participating set, so other-agent turns can be attributed.
func (d *Dispatcher) displayNames(ctx context.Context, history []*store.Message, agents []*store.Agent) map[string]string {
	names := make(map[string]string, len(agents))
	for _, agent := range agents {
		names[agent.ID] = agent.DisplayName
	}
	for _, msg := range history {
		if msg.SenderKind != store.SenderAgent || msg.SenderID == "" {
			continue
		}
		if _, ok := names[msg.SenderID]; ok {
			continue
		}
		agent, err := d.history.GetAgent(ctx, msg.SenderID)
		if err != nil {
			// Fall back to the raw id in the prefix
			continue
		}
		names[msg.SenderID] = agent.DisplayName
	}
	return names
}
