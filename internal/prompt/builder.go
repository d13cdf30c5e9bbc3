// ABOUTME: Builds provider-neutral chat turns from conversation history
// ABOUTME: Attributes human vs. self vs. other-agent authorship for a requesting agent

package prompt

import (
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// Role identifies who authored a turn, from the requesting agent's point of view.
type Role string

const (
	// RoleHuman marks a turn authored by the human user.
	RoleHuman Role = "human"
	// RoleSelf marks a turn the requesting agent itself authored previously.
	RoleSelf Role = "self"
	// RoleOther marks a turn authored by a different agent. Providers have no
	// native third-party role in a two-role chat protocol, so the other
	// agent's display name is prefixed into the text instead.
	RoleOther Role = "other"
)

// Turn is one entry in the ordered context handed to a provider.
type Turn struct {
	Role Role
	Text string
}

// Build converts a bounded, oldest-first message history into ordered turns
// for the given requesting agent. Messages authored by the requesting agent
// become RoleSelf; messages from other agents become RoleOther with
// "[DisplayName]: " prefixed. agentNames maps agent IDs to display names;
// an unknown sender falls back to its raw ID.
//
// Pure function of its inputs; no side effects. A requesting agent that has
// never spoken simply produces no RoleSelf turns.
func Build(history []*store.Message, requestingAgentID string, agentNames map[string]string) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		switch {
		case msg.SenderKind == store.SenderHuman:
			turns = append(turns, Turn{Role: RoleHuman, Text: msg.Content})
		case msg.SenderID == requestingAgentID:
			turns = append(turns, Turn{Role: RoleSelf, Text: msg.Content})
		default:
			name := agentNames[msg.SenderID]
			if name == "" {
				name = msg.SenderID
			}
			turns = append(turns, Turn{Role: RoleOther, Text: "[" + name + "]: " + msg.Content})
		}
	}
	return turns
}
