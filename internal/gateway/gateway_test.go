// ABOUTME: Tests for gateway construction, seeding, and logger wiring
// ABOUTME: Exercises New against a real on-disk store

package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpress/chat-orchestrator/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")},
		Seed: config.SeedConfig{
			Room: &config.SeedRoom{ID: "room-1", Title: "The Room"},
			Agents: []config.SeedAgent{
				{ID: "agent-a", Name: "Alpha", Provider: "openai-compatible"},
			},
		},
	}
}

func TestNew_SeedIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	gw, err := New(cfg, logger)
	require.NoError(t, err)

	// Seeded rows exist
	room, err := gw.store.GetConversation(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a"}, room.AgentIDs)

	require.NoError(t, gw.Shutdown(context.Background()))

	// A second startup against the same database leaves the rows alone
	gw2, err := New(cfg, logger)
	require.NoError(t, err)
	defer gw2.Shutdown(context.Background())

	agents, err := gw2.store.ListAgents(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestNew_EachLogLineCarriesOneComponent(t *testing.T) {
	cfg := newTestConfig(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	gw, err := New(cfg, logger)
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	// Drive a line through the conversation service, which tags itself
	_, err = gw.conversation.RecordUserMessage(context.Background(), "room-1", "hello")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"component":"gateway"`)
	assert.Contains(t, out, `"component":"conversation"`)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"component":`), 1, "line: %s", line)
	}
}
