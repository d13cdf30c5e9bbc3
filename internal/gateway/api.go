// ABOUTME: HTTP API handlers for the scoped AI-reply SSE binding
// ABOUTME: Also serves the read-side endpoints for history and the agent registry

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/lumenpress/chat-orchestrator/internal/dispatch"
	"github.com/lumenpress/chat-orchestrator/internal/provider"
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// ProviderConfigRequest is one agent's provider binding in a request body.
// Fields left empty fall back to the server-side defaults for the agent's
// provider kind.
type ProviderConfigRequest struct {
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	ModelName string `json:"modelName,omitempty"`
}

// AIReplyRequest is the JSON request body for POST /api/conversations/{id}/ai-reply.
type AIReplyRequest struct {
	Content         string                           `json:"content,omitempty"`
	ProviderConfigs map[string]ProviderConfigRequest `json:"providerConfigs"`
}

// SSERecord is one data record on the scoped SSE stream. Content is always
// present so the empty-content typing marker is distinguishable; Message is
// set only on the per-agent terminal record. CorrelationID disambiguates
// concurrent executions of the same agent.
type SSERecord struct {
	AgentID       string         `json:"agentId"`
	AgentName     string         `json:"agentName,omitempty"`
	AvatarURL     string         `json:"avatarUrl,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Content       string         `json:"content"`
	Error         string         `json:"error,omitempty"`
	Message       *store.Message `json:"message,omitempty"`
}

// AgentInfoResponse is the JSON response element for GET /api/agents.
type AgentInfoResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Provider  string `json:"provider"`
}

// ConversationMessagesResponse is the JSON response for
// GET /api/conversations/{id}/messages.
type ConversationMessagesResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []*store.Message `json:"messages"`
}

// handleConversationRoutes dispatches /api/conversations/{id}/... by suffix.
func (g *Gateway) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	switch {
	case strings.HasSuffix(rest, "/ai-reply"):
		g.handleAIReply(w, r, strings.TrimSuffix(rest, "/ai-reply"))
	case strings.HasSuffix(rest, "/messages"):
		g.handleConversationMessages(w, r, strings.TrimSuffix(rest, "/messages"))
	default:
		g.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleAIReply handles POST /api/conversations/{id}/ai-reply.
// It optionally persists the human message, fans the dispatch cycle out to
// every participating agent, and streams the unified event stream back as
// SSE data records.
//
// The request context is threaded into the dispatch, so a caller disconnect
// aborts the in-flight provider calls. Finalization is detached inside the
// dispatcher; a reply that finished generating is still committed.
func (g *Gateway) handleAIReply(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if conversationID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	req, err := parseAIReplyRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	agents, err := g.loadParticipants(r.Context(), conv, req.ProviderConfigs)
	if err != nil {
		g.logger.Error("failed to load participating agents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(agents) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "conversation has no participating agents")
		return
	}

	// Check streaming support before committing anything (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Record first, then act: the human turn is durable before any agent
	// sees it
	if req.Content != "" {
		if _, err := g.conversation.RecordUserMessage(r.Context(), conv.ID, req.Content); err != nil {
			g.logger.Error("failed to record user message", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := g.dispatcher.Dispatch(r.Context(), conv, agents, g.resolveConfigs(agents, req.ProviderConfigs))

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSERecord(w, dispatchEventToSSERecord(ev))
			flusher.Flush()
		}
	}
}

// dispatchEventToSSERecord converts a dispatch event to its SSE wire shape.
func dispatchEventToSSERecord(ev *dispatch.Event) SSERecord {
	switch ev.Kind {
	case dispatch.EventTyping:
		// Empty-content record with name and avatar marks Waiting→Streaming
		return SSERecord{AgentID: ev.AgentID, AgentName: ev.AgentName, AvatarURL: ev.AvatarURL, CorrelationID: ev.CorrelationID}
	case dispatch.EventDelta:
		return SSERecord{AgentID: ev.AgentID, AgentName: ev.AgentName, AvatarURL: ev.AvatarURL, CorrelationID: ev.CorrelationID, Content: ev.Delta}
	case dispatch.EventComplete:
		// Explicit per-agent terminal record carrying the committed message
		return SSERecord{AgentID: ev.AgentID, CorrelationID: ev.CorrelationID, Message: ev.Message}
	default:
		return SSERecord{AgentID: ev.AgentID, AgentName: ev.AgentName, CorrelationID: ev.CorrelationID, Error: ev.Err}
	}
}

// loadParticipants resolves the participating agents from the registry.
// Group and room conversations carry their member set; a single conversation
// has none, so its one agent is named by the providerConfigs keys of the
// request instead.
func (g *Gateway) loadParticipants(ctx context.Context, conv *store.Conversation, reqConfigs map[string]ProviderConfigRequest) ([]*store.Agent, error) {
	ids := conv.AgentIDs
	if len(ids) == 0 && conv.Kind == store.KindSingle {
		ids = make([]string, 0, len(reqConfigs))
		for id := range reqConfigs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	agents := make([]*store.Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := g.store.GetAgent(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("conversation references unknown agent", "agent_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// resolveConfigs merges request-supplied provider configs over the
// server-side defaults for each agent's provider kind. The kind itself is
// resolved from the agent row at dispatch time.
func (g *Gateway) resolveConfigs(agents []*store.Agent, reqConfigs map[string]ProviderConfigRequest) map[string]provider.Config {
	configs := make(map[string]provider.Config, len(agents))
	for _, agent := range agents {
		cfg := provider.Config{}
		if defaults, ok := g.config.Providers[agent.ProviderKind]; ok {
			cfg.BaseURL = defaults.BaseURL
			cfg.APIKey = defaults.APIKey
			cfg.Model = defaults.Model
		}
		if rc, ok := reqConfigs[agent.ID]; ok {
			if rc.BaseURL != "" {
				cfg.BaseURL = rc.BaseURL
			}
			if rc.APIKey != "" {
				cfg.APIKey = rc.APIKey
			}
			if rc.ModelName != "" {
				cfg.Model = rc.ModelName
			}
		}
		configs[agent.ID] = cfg
	}
	return configs
}

// handleConversationMessages handles GET /api/conversations/{id}/messages.
// Returns the committed history for a conversation, optionally limited by ?limit=N.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if conversationID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	// Parse optional limit parameter (default 50, max 1000)
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 1000 {
			limit = 1000
		}
	}

	if _, err := g.store.GetConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	messages, err := g.conversation.History(r.Context(), conversationID, limit)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ConversationMessagesResponse{
		ConversationID: conversationID,
		Messages:       messages,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleListAgents handles GET /api/agents requests.
// It returns the agent registry so callers can build provider configs.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents, err := g.store.ListAgents(r.Context(), 0)
	if err != nil {
		g.logger.Error("failed to list agents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]AgentInfoResponse, 0, len(agents))
	for _, a := range agents {
		response = append(response, AgentInfoResponse{
			ID:        a.ID,
			Name:      a.DisplayName,
			AvatarURL: a.AvatarURL,
			Provider:  a.ProviderKind,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeSSERecord writes a single data-only SSE record to the response writer.
func (g *Gateway) writeSSERecord(w http.ResponseWriter, v any) {
	dataJSON, err := json.Marshal(v)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseAIReplyRequest parses and validates an AIReplyRequest from the given reader.
func parseAIReplyRequest(r io.Reader) (*AIReplyRequest, error) {
	var req AIReplyRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return &req, nil
}
