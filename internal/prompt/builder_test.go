// ABOUTME: Tests for turn building and authorship attribution
// ABOUTME: Covers self/other mapping, name prefixing, and empty histories

package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lumenpress/chat-orchestrator/internal/store"
)

func historyFixture() []*store.Message {
	base := time.Now()
	return []*store.Message{
		{ID: "m1", SenderKind: store.SenderHuman, Content: "hi", CreatedAt: base},
		{ID: "m2", SenderKind: store.SenderAgent, SenderID: "agent-a", Content: "hello", CreatedAt: base.Add(time.Second)},
		{ID: "m3", SenderKind: store.SenderAgent, SenderID: "agent-b", Content: "hey", CreatedAt: base.Add(2 * time.Second)},
	}
}

var names = map[string]string{
	"agent-a": "Alpha",
	"agent-b": "Beta",
}

func TestBuild_AttributionForAgentA(t *testing.T) {
	turns := Build(historyFixture(), "agent-a", names)

	assert.Equal(t, []Turn{
		{Role: RoleHuman, Text: "hi"},
		{Role: RoleSelf, Text: "hello"},
		{Role: RoleOther, Text: "[Beta]: hey"},
	}, turns)
}

func TestBuild_AttributionForAgentB(t *testing.T) {
	turns := Build(historyFixture(), "agent-b", names)

	assert.Equal(t, []Turn{
		{Role: RoleHuman, Text: "hi"},
		{Role: RoleOther, Text: "[Alpha]: hello"},
		{Role: RoleSelf, Text: "hey"},
	}, turns)
}

func TestBuild_AgentThatNeverSpoke(t *testing.T) {
	turns := Build(historyFixture(), "agent-c", names)

	for _, turn := range turns {
		assert.NotEqual(t, RoleSelf, turn.Role)
	}
	assert.Len(t, turns, 3)
}

func TestBuild_UnknownSenderFallsBackToID(t *testing.T) {
	history := []*store.Message{
		{SenderKind: store.SenderAgent, SenderID: "agent-x", Content: "yo"},
	}

	turns := Build(history, "agent-a", names)
	assert.Equal(t, []Turn{{Role: RoleOther, Text: "[agent-x]: yo"}}, turns)
}

func TestBuild_EmptyHistory(t *testing.T) {
	turns := Build(nil, "agent-a", names)
	assert.Empty(t, turns)
}

func TestBuild_OrderPreserved(t *testing.T) {
	history := []*store.Message{
		{SenderKind: store.SenderHuman, Content: "first"},
		{SenderKind: store.SenderHuman, Content: "second"},
		{SenderKind: store.SenderAgent, SenderID: "agent-a", Content: "third"},
	}

	turns := Build(history, "agent-a", names)
	assert.Equal(t, "first", turns[0].Text)
	assert.Equal(t, "second", turns[1].Text)
	assert.Equal(t, "third", turns[2].Text)
}
