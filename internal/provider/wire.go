// ABOUTME: Wire-format request builders for the supported provider families
// ABOUTME: Maps provider-neutral turns onto the two-role chat protocols

package provider

import (
	"github.com/lumenpress/chat-orchestrator/internal/prompt"
)

// anthropicMaxTokens caps streamed reply length; the Messages API requires an
// explicit value.
const anthropicMaxTokens = 4096

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest builds a Chat Completions payload. Human and other-agent
// turns become user messages (other-agent turns already carry the speaker's
// name prefix); self turns become assistant messages so the provider sees
// its own prior replies as its own.
func openAIRequest(req Request, cfg Config) any {
	messages := make([]chatMessage, 0, len(req.Turns)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.Turns {
		messages = append(messages, chatMessage{Role: roleFor(turn.Role), Content: turn.Text})
	}

	return struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}{
		Model:    cfg.Model,
		Messages: messages,
		Stream:   true,
	}
}

// anthropicRequest builds a Messages API payload. The system prompt rides in
// its own field, and consecutive same-role turns are coalesced because the
// Messages API requires strict user/assistant alternation.
func anthropicRequest(req Request, cfg Config) any {
	var messages []chatMessage
	for _, turn := range req.Turns {
		role := roleFor(turn.Role)
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + turn.Text
			continue
		}
		messages = append(messages, chatMessage{Role: role, Content: turn.Text})
	}
	// The API rejects an assistant-first transcript
	if len(messages) > 0 && messages[0].Role == "assistant" {
		messages = append([]chatMessage{{Role: "user", Content: "(continuing the conversation)"}}, messages...)
	}

	return struct {
		Model     string        `json:"model"`
		System    string        `json:"system,omitempty"`
		Messages  []chatMessage `json:"messages"`
		MaxTokens int           `json:"max_tokens"`
		Stream    bool          `json:"stream"`
	}{
		Model:     cfg.Model,
		System:    req.SystemPrompt,
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
		Stream:    true,
	}
}

func roleFor(role prompt.Role) string {
	if role == prompt.RoleSelf {
		return "assistant"
	}
	return "user"
}
