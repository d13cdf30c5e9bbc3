// Package config handles configuration loading for chat-orchestrator.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  provider_timeout: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-orchestrator/orchestrator.db"
//
// Dispatch tuning:
//
//	chat:
//	  history_window: 30
//	  provider_timeout: "2m"
//
// Provider defaults (merged field by field under request-supplied configs):
//
//	providers:
//	  openai:
//	    base_url: "https://api.openai.com/v1"
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "gpt-4o-mini"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Startup seed (the shared broadcast room and its agents):
//
//	seed:
//	  room:
//	    id: "shared-room"
//	    title: "The Shared Room"
//	  agents:
//	    - id: "helper"
//	      name: "Helper"
//	      system_prompt: "You are a helpful assistant."
//	      provider: "openai"
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/chat-orchestrator/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
