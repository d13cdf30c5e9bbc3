// ABOUTME: Configuration loading and parsing for chat-orchestrator
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-orchestrator configuration
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Chat      ChatConfig                `yaml:"chat"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Logging   LoggingConfig             `yaml:"logging"`
	Seed      SeedConfig                `yaml:"seed"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig holds dispatch timing and sizing configuration
type ChatConfig struct {
	HistoryWindow   int           `yaml:"history_window"`
	ProviderTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ProviderTimeoutRaw string `yaml:"provider_timeout"`
}

// ProviderConfig holds server-side defaults for one provider kind.
// Request-supplied provider configs take precedence field by field.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SeedConfig describes rows created at startup so the shared broadcast
// room exists before anyone joins it.
type SeedConfig struct {
	Room   *SeedRoom   `yaml:"room"`
	Agents []SeedAgent `yaml:"agents"`
}

// SeedRoom is the shared broadcast room conversation to create at startup.
type SeedRoom struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// SeedAgent is an agent registry row to create at startup.
type SeedAgent struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Provider     string `yaml:"provider"`
	AvatarURL    string `yaml:"avatar_url"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("chat.history_window must not be negative")
	}

	if c.Seed.Room != nil && c.Seed.Room.ID == "" {
		return fmt.Errorf("seed.room.id is required when seed.room is set")
	}

	for i, a := range c.Seed.Agents {
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("seed.agents[%d]: id and name are required", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.ProviderTimeoutRaw != "" {
		cfg.Chat.ProviderTimeout, err = time.ParseDuration(cfg.Chat.ProviderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing provider_timeout %q: %w", cfg.Chat.ProviderTimeoutRaw, err)
		}
	}

	return nil
}
