// ABOUTME: Streaming HTTP client for upstream AI providers
// ABOUTME: Decodes newline-delimited "data: <json>" frames, skipping malformed records

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an upstream error response is read into
// the returned error.
const maxErrorBody = 4096

// Client opens streaming chat requests against configured upstream endpoints.
// It makes a single attempt per call: no retries. Retries, if wanted, are a
// dispatch policy decision, not a transport one.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Pass nil for defaults. The HTTP client must not
// carry a body timeout; streaming lifetimes are governed by the caller's ctx.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger.With("component", "provider"),
	}
}

// Stream opens one chunked request to the configured upstream and returns a
// channel of incremental events. A non-nil error means the request failed
// before any delta was produced (missing credentials, connect error,
// non-2xx); in that case no channel is returned and nothing exists to
// persist. Once the channel is returned, it yields zero or more Delta events
// followed by exactly one Done or Err event, then closes.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpReq, err := c.buildRequest(ctx, req, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("connecting to provider: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	events := make(chan Event, 16)
	go c.decode(ctx, resp.Body, cfg.Kind, events)
	return events, nil
}

// buildRequest assembles the provider-specific HTTP request.
func (c *Client) buildRequest(ctx context.Context, req Request, cfg Config) (*http.Request, error) {
	var url string
	var payload any

	switch cfg.Kind {
	case KindAnthropic:
		url = strings.TrimRight(cfg.BaseURL, "/") + "/messages"
		payload = anthropicRequest(req, cfg)
	default:
		url = strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
		payload = openAIRequest(req, cfg)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	switch cfg.Kind {
	case KindAnthropic:
		httpReq.Header.Set("x-api-key", cfg.APIKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
	default:
		if cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}
	}

	return httpReq, nil
}

// decode reads newline-delimited SSE frames from the upstream body and emits
// events. Malformed individual records are skipped silently: partial
// corruption of one frame is common with third-party SSE and must degrade
// gracefully, not abort the stream.
func (c *Client) decode(ctx context.Context, body io.ReadCloser, kind Kind, events chan<- Event) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// event: lines, comments, blank keep-alives
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		delta, done, ok := decodeFrame(kind, payload)
		if !ok {
			c.logger.Debug("skipping malformed stream frame", "kind", kind)
			continue
		}
		if done {
			events <- Event{Done: true}
			return
		}
		if delta == "" {
			continue
		}

		select {
		case events <- Event{Delta: delta}:
		case <-ctx.Done():
			events <- Event{Err: ctx.Err()}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			events <- Event{Err: ctx.Err()}
			return
		}
		events <- Event{Err: fmt.Errorf("reading provider stream: %w", err)}
		return
	}

	// Upstream closed the body without an explicit sentinel; the reply is
	// whatever streamed so far.
	events <- Event{Done: true}
}

// decodeFrame extracts the delta or terminal marker from one data payload.
// ok is false when the record is unparseable.
func decodeFrame(kind Kind, payload string) (delta string, done bool, ok bool) {
	switch kind {
	case KindAnthropic:
		var frame struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return "", false, false
		}
		switch frame.Type {
		case "message_stop":
			return "", true, true
		case "content_block_delta":
			return frame.Delta.Text, false, true
		default:
			// ping, message_start, content_block_start, message_delta
			return "", false, true
		}

	default:
		if payload == "[DONE]" {
			return "", true, true
		}
		var frame struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return "", false, false
		}
		if len(frame.Choices) == 0 {
			return "", false, true
		}
		return frame.Choices[0].Delta.Content, false, true
	}
}
