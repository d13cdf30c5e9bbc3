// ABOUTME: Tests for the HTTP API handlers
// ABOUTME: Covers the scoped SSE binding, config merging, and read-side endpoints

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/chat-orchestrator/internal/config"
	"github.com/lumenpress/chat-orchestrator/internal/conversation"
	"github.com/lumenpress/chat-orchestrator/internal/dispatch"
	"github.com/lumenpress/chat-orchestrator/internal/provider"
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// fakeDispatcher replays a scripted event sequence and records what it was
// asked to dispatch.
type fakeDispatcher struct {
	mu      sync.Mutex
	conv    *store.Conversation
	agents  []*store.Agent
	configs map[string]provider.Config
	script  []*dispatch.Event
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, conv *store.Conversation, agents []*store.Agent, configs map[string]provider.Config) <-chan *dispatch.Event {
	f.mu.Lock()
	f.conv = conv
	f.agents = agents
	f.configs = configs
	script := f.script
	f.mu.Unlock()

	ch := make(chan *dispatch.Event, len(script)+1)
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch
}

type apiFixture struct {
	gateway    *Gateway
	dispatcher *fakeDispatcher
	mock       *store.MockStore
	server     *httptest.Server
}

func newAPIFixture(t *testing.T, cfg *config.Config) *apiFixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	mock := store.NewMockStore()
	disp := &fakeDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := &Gateway{
		config:       cfg,
		store:        mock,
		conversation: conversation.NewService(mock, logger),
		broadcaster:  conversation.NewBroadcaster(logger),
		dispatcher:   disp,
		logger:       logger,
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(func() { gw.broadcaster.Close() })

	return &apiFixture{gateway: gw, dispatcher: disp, mock: mock, server: server}
}

func (f *apiFixture) seedConversation(t *testing.T, id string, kind store.ConversationKind, agentIDs ...string) {
	t.Helper()
	require.NoError(t, f.mock.CreateConversation(context.Background(), &store.Conversation{
		ID:        id,
		Kind:      kind,
		AgentIDs:  agentIDs,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
}

func (f *apiFixture) seedAgent(t *testing.T, id, name, providerKind string) {
	t.Helper()
	require.NoError(t, f.mock.CreateAgent(context.Background(), &store.Agent{
		ID:           id,
		DisplayName:  name,
		ProviderKind: providerKind,
		CreatedAt:    time.Now(),
	}))
}

// readSSERecords parses data-only SSE records from a response body.
func readSSERecords(t *testing.T, body io.Reader) []SSERecord {
	t.Helper()
	var records []SSERecord
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec SSERecord
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec))
		records = append(records, rec)
	}
	return records
}

func TestHandleAIReply_StreamsDispatchEvents(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedAgent(t, "agent-a", "Alpha", "openai")
	f.seedConversation(t, "conv-1", store.KindSingle, "agent-a")

	committed := &store.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderKind:     store.SenderAgent,
		SenderID:       "agent-a",
		Content:        "Hello",
		CreatedAt:      time.Now(),
	}
	f.dispatcher.script = []*dispatch.Event{
		{Kind: dispatch.EventTyping, CorrelationID: "c1", AgentID: "agent-a", AgentName: "Alpha"},
		{Kind: dispatch.EventDelta, CorrelationID: "c1", AgentID: "agent-a", AgentName: "Alpha", Delta: "Hel"},
		{Kind: dispatch.EventDelta, CorrelationID: "c1", AgentID: "agent-a", AgentName: "Alpha", Delta: "lo"},
		{Kind: dispatch.EventComplete, CorrelationID: "c1", AgentID: "agent-a", Message: committed},
	}

	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(`{"content":"hi there"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	records := readSSERecords(t, resp.Body)
	require.Len(t, records, 4)

	// Typing marker: empty content with agent identity
	assert.Equal(t, "agent-a", records[0].AgentID)
	assert.Equal(t, "Alpha", records[0].AgentName)
	assert.Empty(t, records[0].Content)

	assert.Equal(t, "Hel", records[1].Content)
	assert.Equal(t, "lo", records[2].Content)

	// Every record carries the correlation id so a caller can demultiplex
	// concurrent executions of the same agent
	for _, rec := range records {
		assert.Equal(t, "c1", rec.CorrelationID)
	}

	// Explicit terminal record carrying the committed message
	require.NotNil(t, records[3].Message)
	assert.Equal(t, "msg-1", records[3].Message.ID)
	assert.Equal(t, "Hello", records[3].Message.Content)

	// The human turn was recorded before dispatch
	assert.Equal(t, 1, f.mock.MessageCount("conv-1"))
}

func TestHandleAIReply_EmptyContentSkipsUserMessage(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedAgent(t, "agent-a", "Alpha", "openai")
	f.seedConversation(t, "conv-1", store.KindSingle, "agent-a")
	f.dispatcher.script = nil

	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(`{"providerConfigs":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.mock.MessageCount("conv-1"))
}

func TestHandleAIReply_UnknownConversation(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Post(f.server.URL+"/api/conversations/nope/ai-reply", "application/json",
		strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleAIReply_SingleConversationResolvesAgentFromRequest(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedAgent(t, "agent-a", "Alpha", "openai")
	// A single conversation carries no member rows; the request names its agent
	f.seedConversation(t, "conv-1", store.KindSingle)

	f.dispatcher.script = []*dispatch.Event{
		{Kind: dispatch.EventComplete, CorrelationID: "c1", AgentID: "agent-a"},
	}

	body := `{"content":"hi","providerConfigs":{"agent-a":{"modelName":"gpt-test"}}}`
	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := readSSERecords(t, resp.Body)
	require.Len(t, records, 1)

	f.dispatcher.mu.Lock()
	agents := f.dispatcher.agents
	f.dispatcher.mu.Unlock()
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-a", agents[0].ID)
}

func TestHandleAIReply_NoParticipants(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedConversation(t, "conv-1", store.KindGroup)

	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAIReply_InvalidBody(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResolveConfigs_MergesRequestOverDefaults(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {BaseURL: "https://default.example/v1", APIKey: "default-key", Model: "default-model"},
		},
	}
	f := newAPIFixture(t, cfg)
	f.seedAgent(t, "agent-a", "Alpha", "openai")
	f.seedConversation(t, "conv-1", store.KindSingle, "agent-a")

	body := `{"content":"hi","providerConfigs":{"agent-a":{"apiKey":"request-key","modelName":"request-model"}}}`
	resp, err := http.Post(f.server.URL+"/api/conversations/conv-1/ai-reply", "application/json",
		strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	f.dispatcher.mu.Lock()
	got := f.dispatcher.configs["agent-a"]
	f.dispatcher.mu.Unlock()

	// Request fields win, unset fields keep the server default
	assert.Equal(t, "https://default.example/v1", got.BaseURL)
	assert.Equal(t, "request-key", got.APIKey)
	assert.Equal(t, "request-model", got.Model)
}

func TestHandleConversationMessages(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedConversation(t, "conv-1", store.KindSingle)

	base := time.Now()
	for i, content := range []string{"first", "second"} {
		require.NoError(t, f.mock.SaveMessage(context.Background(), &store.Message{
			ID:             content,
			ConversationID: "conv-1",
			SenderKind:     store.SenderHuman,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	resp, err := http.Get(f.server.URL + "/api/conversations/conv-1/messages")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got ConversationMessagesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "conv-1", got.ConversationID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, "second", got.Messages[1].Content)
}

func TestHandleConversationMessages_UnknownConversation(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/api/conversations/nope/messages")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleConversationMessages_InvalidLimit(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedConversation(t, "conv-1", store.KindSingle)

	resp, err := http.Get(f.server.URL + "/api/conversations/conv-1/messages?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleListAgents(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedAgent(t, "agent-a", "Alpha", "openai")
	f.seedAgent(t, "agent-b", "Beta", "anthropic")

	resp, err := http.Get(f.server.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []AgentInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)

	byID := make(map[string]AgentInfoResponse)
	for _, a := range got {
		byID[a.ID] = a
	}
	assert.Equal(t, "Alpha", byID["agent-a"].Name)
	assert.Equal(t, "openai", byID["agent-a"].Provider)
	assert.Equal(t, "anthropic", byID["agent-b"].Provider)
}

func TestHandleHealthz(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleAIReply_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, nil)

	resp, err := http.Get(f.server.URL + "/api/conversations/conv-1/ai-reply")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
