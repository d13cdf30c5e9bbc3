// ABOUTME: Tests for the streaming provider client
// ABOUTME: Covers SSE decoding, malformed frame tolerance, and request-level failures

package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/chat-orchestrator/internal/prompt"
)

// sseServer returns a test server that writes the given lines as the
// response body, flushing after each.
func sseServer(t *testing.T, lines []string, capture *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			*capture = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openAIConfig(baseURL string) Config {
	return Config{Kind: KindOpenAICompatible, BaseURL: baseURL, Model: "test-model"}
}

func collect(t *testing.T, events <-chan Event) (deltas []string, done bool, err error) {
	t.Helper()
	for ev := range events {
		switch {
		case ev.Err != nil:
			err = ev.Err
		case ev.Done:
			done = true
		default:
			deltas = append(deltas, ev.Delta)
		}
	}
	return deltas, done, err
}

func TestStream_OpenAIDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: [DONE]`,
	}, nil)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{
		Turns:  []prompt.Turn{{Role: prompt.RoleHuman, Text: "hi"}},
		Config: openAIConfig(srv.URL),
	})
	require.NoError(t, err)

	deltas, done, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.True(t, done)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestStream_MalformedFramesSkipped(t *testing.T) {
	// 3 valid deltas interleaved with 2 malformed records: the reassembled
	// text must equal the concatenation of only the valid ones.
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"one "}}]}`,
		`data: {not json at all`,
		`data: {"choices":[{"delta":{"content":"two "}}]}`,
		`data: <<<garbage>>>`,
		`data: {"choices":[{"delta":{"content":"three"}}]}`,
		`data: [DONE]`,
	}, nil)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{Config: openAIConfig(srv.URL)})
	require.NoError(t, err)

	deltas, done, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.True(t, done)

	var text string
	for _, d := range deltas {
		text += d
	}
	assert.Equal(t, "one two three", text)
}

func TestStream_EOFWithoutSentinelIsDone(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
	}, nil)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{Config: openAIConfig(srv.URL)})
	require.NoError(t, err)

	deltas, done, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.True(t, done)
	assert.Equal(t, []string{"partial"}, deltas)
}

func TestStream_NonDataLinesIgnored(t *testing.T) {
	srv := sseServer(t, []string{
		`: keep-alive comment`,
		`event: delta`,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
	}, nil)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{Config: openAIConfig(srv.URL)})
	require.NoError(t, err)

	deltas, done, _ := collect(t, events)
	assert.True(t, done)
	assert.Equal(t, []string{"ok"}, deltas)
}

func TestStream_AnthropicDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start"}`,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hey"}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" there"}}`,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
	}, nil)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{
		Config: Config{Kind: KindAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "test-model"},
	})
	require.NoError(t, err)

	deltas, done, streamErr := collect(t, events)
	require.NoError(t, streamErr)
	assert.True(t, done)
	assert.Equal(t, []string{"Hey", " there"}, deltas)
}

func TestStream_Non2xxFailsBeforeAnyDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(nil, nil)
	_, err := c.Stream(context.Background(), Request{Config: openAIConfig(srv.URL)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestStream_ConnectionRefusedFails(t *testing.T) {
	c := NewClient(nil, nil)
	_, err := c.Stream(context.Background(), Request{
		Config: openAIConfig("http://127.0.0.1:1"),
	})
	assert.Error(t, err)
}

func TestStream_MissingCredentials(t *testing.T) {
	c := NewClient(nil, nil)

	_, err := c.Stream(context.Background(), Request{
		Config: Config{Kind: KindOpenAI, Model: "gpt-4o"},
	})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = c.Stream(context.Background(), Request{
		Config: Config{Kind: KindAnthropic, Model: "claude"},
	})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = c.Stream(context.Background(), Request{
		Config: Config{Kind: KindOpenAI, APIKey: "k"},
	})
	assert.ErrorIs(t, err, ErrMissingModel)

	_, err = c.Stream(context.Background(), Request{
		Config: Config{Kind: KindOpenAICompatible, Model: "m"},
	})
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestStream_RequestBodyShape(t *testing.T) {
	var captured []byte
	srv := sseServer(t, []string{`data: [DONE]`}, &captured)

	c := NewClient(nil, nil)
	events, err := c.Stream(context.Background(), Request{
		Turns: []prompt.Turn{
			{Role: prompt.RoleHuman, Text: "hi"},
			{Role: prompt.RoleSelf, Text: "hello"},
			{Role: prompt.RoleOther, Text: "[Beta]: hey"},
		},
		SystemPrompt: "You are Alpha.",
		Config:       openAIConfig(srv.URL),
	})
	require.NoError(t, err)
	collect(t, events)

	var body struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "test-model", body.Model)
	assert.True(t, body.Stream)
	require.Len(t, body.Messages, 4)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "assistant", body.Messages[2].Role)
	assert.Equal(t, "user", body.Messages[3].Role)
	assert.Equal(t, "[Beta]: hey", body.Messages[3].Content)
}

func TestAnthropicRequest_CoalescesConsecutiveRoles(t *testing.T) {
	req := Request{
		Turns: []prompt.Turn{
			{Role: prompt.RoleHuman, Text: "hi"},
			{Role: prompt.RoleOther, Text: "[Beta]: hey"},
			{Role: prompt.RoleSelf, Text: "hello"},
		},
		SystemPrompt: "sys",
	}

	payload := anthropicRequest(req, Config{Model: "m"})
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var body struct {
		System   string `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "sys", body.System)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "hi\n\n[Beta]: hey", body.Messages[0].Content)
	assert.Equal(t, "assistant", body.Messages[1].Role)
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"openai", "anthropic", "openai-compatible"} {
		kind, err := ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, Kind(valid), kind)
	}

	_, err := ParseKind("gpt4-flavored")
	assert.Error(t, err)
}
