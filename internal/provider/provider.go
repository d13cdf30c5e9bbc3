// ABOUTME: Provider config types and the streaming event model for upstream AI backends
// ABOUTME: Defines the closed ProviderKind enum resolved at agent-configuration time

package provider

import (
	"errors"
	"fmt"

	"github.com/lumenpress/chat-orchestrator/internal/prompt"
)

// ErrMissingAPIKey indicates the resolved config has no credential for a
// provider family that requires one.
var ErrMissingAPIKey = errors.New("provider api key is required")

// ErrMissingModel indicates the resolved config has no model name.
var ErrMissingModel = errors.New("provider model name is required")

// ErrMissingBaseURL indicates an openai-compatible config without an endpoint.
var ErrMissingBaseURL = errors.New("provider base url is required")

// Kind identifies an upstream model family. It is a closed set resolved once
// when an agent is configured, never re-derived from model-name conventions.
type Kind string

const (
	// KindOpenAI targets the OpenAI Chat Completions API.
	KindOpenAI Kind = "openai"
	// KindAnthropic targets the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
	// KindOpenAICompatible targets any self-hosted or third-party endpoint
	// speaking the Chat Completions wire format (requires an explicit base URL).
	KindOpenAICompatible Kind = "openai-compatible"
)

// ParseKind validates a provider kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOpenAI, KindAnthropic, KindOpenAICompatible:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", s)
	}
}

// Config is the per-dispatch resolved provider binding for one agent.
// It is assembled at call time from caller-supplied settings with config-file
// defaults, and is never persisted alongside messages.
type Config struct {
	Kind    Kind
	BaseURL string
	APIKey  string
	Model   string
}

// Validate checks the config against its kind's requirements and fills in
// the default base URL for hosted families.
func (c *Config) Validate() error {
	if c.Model == "" {
		return ErrMissingModel
	}
	switch c.Kind {
	case KindOpenAI:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
	case KindAnthropic:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
		if c.BaseURL == "" {
			c.BaseURL = "https://api.anthropic.com/v1"
		}
	case KindOpenAICompatible:
		// Local endpoints commonly run without credentials
		if c.BaseURL == "" {
			return ErrMissingBaseURL
		}
	default:
		return fmt.Errorf("unknown provider kind %q", c.Kind)
	}
	return nil
}

// Request carries everything one streaming call needs.
type Request struct {
	Turns        []prompt.Turn
	SystemPrompt string
	Config       Config
}

// Event is one item in a provider stream: either an incremental text delta,
// a terminal Done, or a terminal Err. After Done or Err the channel closes.
type Event struct {
	Delta string
	Done  bool
	Err   error
}
