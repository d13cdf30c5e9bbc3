// ABOUTME: Websocket binding for the shared broadcast room
// ABOUTME: Accepts ai:request commands and fans dispatch events out to every subscriber

package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lumenpress/chat-orchestrator/internal/conversation"
	"github.com/lumenpress/chat-orchestrator/internal/dispatch"
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// MentionedAgent identifies one agent addressed by an ai:request command.
type MentionedAgent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RoomCommand is an inbound websocket frame from a room participant.
type RoomCommand struct {
	Type            string                           `json:"type"`
	Content         string                           `json:"content,omitempty"`
	MentionedAgents []MentionedAgent                 `json:"mentionedAgents,omitempty"`
	ProviderConfigs map[string]ProviderConfigRequest `json:"providerConfigs,omitempty"`
}

// handleRoomRoutes dispatches /api/rooms/{id}/... by suffix.
func (g *Gateway) handleRoomRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if strings.HasSuffix(rest, "/ws") {
		g.handleRoomSocket(w, r, strings.TrimSuffix(rest, "/ws"))
		return
	}
	g.sendJSONError(w, http.StatusNotFound, "not found")
}

// handleRoomSocket handles GET /api/rooms/{id}/ws.
// Every accepted socket subscribes to the room's broadcast stream; inbound
// ai:request commands trigger a dispatch cycle whose events are published to
// all subscribers, not just the sender.
func (g *Gateway) handleRoomSocket(w http.ResponseWriter, r *http.Request, roomID string) {
	if roomID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "room id is required")
		return
	}

	room, err := g.store.GetConversation(r.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load room", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if room.Kind != store.KindBroadcastRoom {
		g.sendJSONError(w, http.StatusBadRequest, "conversation is not a broadcast room")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	events, subID := g.broadcaster.Subscribe(ctx, room.ID)
	defer g.broadcaster.Unsubscribe(room.ID, subID)

	g.logger.Info("room participant joined",
		"conversation_id", room.ID,
		"sub_id", subID,
		"subscribers", g.broadcaster.SubscriberCount(room.ID))

	// Writer: relay broadcast events to this socket
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for ev := range events {
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}()

	// Reader: process participant commands until the socket closes
	for {
		var cmd RoomCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			break
		}

		switch cmd.Type {
		case "ai:request":
			g.handleAIRequest(ctx, room, &cmd)
		default:
			g.logger.Debug("ignoring unknown room command", "type", cmd.Type)
		}
	}

	g.broadcaster.Unsubscribe(room.ID, subID)
	<-writeDone
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleAIRequest records the human turn, broadcasts it, and starts a
// dispatch cycle for the mentioned agents. The dispatch runs on a context
// detached from this socket: other subscribers still want the replies even
// if the requester disconnects mid-stream.
func (g *Gateway) handleAIRequest(ctx context.Context, room *store.Conversation, cmd *RoomCommand) {
	if cmd.Content == "" {
		g.logger.Warn("ai:request with empty content ignored", "conversation_id", room.ID)
		return
	}
	if len(cmd.MentionedAgents) == 0 {
		g.logger.Warn("ai:request without mentioned agents ignored", "conversation_id", room.ID)
		return
	}

	userMsg, err := g.conversation.RecordUserMessage(ctx, room.ID, cmd.Content)
	if err != nil {
		g.logger.Error("failed to record room user message", "error", err)
		return
	}
	g.broadcaster.Publish(room.ID, &conversation.RoomEvent{
		Type:    conversation.RoomUserMessage,
		Message: userMsg,
	})

	agents := make([]*store.Agent, 0, len(cmd.MentionedAgents))
	for _, m := range cmd.MentionedAgents {
		agent, err := g.store.GetAgent(ctx, m.ID)
		if errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("ai:request mentions unknown agent", "agent_id", m.ID)
			continue
		}
		if err != nil {
			g.logger.Error("failed to load mentioned agent", "error", err)
			continue
		}
		agents = append(agents, agent)
	}
	if len(agents) == 0 {
		return
	}

	configs := g.resolveConfigs(agents, cmd.ProviderConfigs)
	events := g.dispatcher.Dispatch(context.WithoutCancel(ctx), room, agents, configs)

	go g.relayDispatchToRoom(room.ID, events)
}

// relayDispatchToRoom translates dispatch events into room broadcast frames.
func (g *Gateway) relayDispatchToRoom(roomID string, events <-chan *dispatch.Event) {
	for ev := range events {
		g.broadcaster.Publish(roomID, dispatchEventToRoomEvent(ev))
	}
}

// dispatchEventToRoomEvent converts a dispatch event to its broadcast frame.
func dispatchEventToRoomEvent(ev *dispatch.Event) *conversation.RoomEvent {
	switch ev.Kind {
	case dispatch.EventTyping:
		return &conversation.RoomEvent{
			Type:          conversation.RoomAgentTyping,
			CorrelationID: ev.CorrelationID,
			AgentID:       ev.AgentID,
			AgentName:     ev.AgentName,
			AvatarURL:     ev.AvatarURL,
		}
	case dispatch.EventDelta:
		return &conversation.RoomEvent{
			Type:          conversation.RoomAgentDelta,
			CorrelationID: ev.CorrelationID,
			Content:       ev.Delta,
		}
	case dispatch.EventComplete:
		return &conversation.RoomEvent{
			Type:          conversation.RoomAgentComplete,
			CorrelationID: ev.CorrelationID,
			Message:       ev.Message,
		}
	default:
		return &conversation.RoomEvent{
			Type:          conversation.RoomAgentError,
			CorrelationID: ev.CorrelationID,
			Error:         ev.Err,
		}
	}
}
