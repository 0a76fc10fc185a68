package config

import (
	"fmt"
)

// Config is the root configuration structure for the gateway.
type Config struct {
	// Server contains the HTTP listen address.
	Server ServerConfig `toml:"server"`

	// Rag optionally enables the hybrid retrieval pipeline. RAG is strictly
	// optional: a nil section disables it everywhere.
	Rag *RagConfig `toml:"rag"`

	// ServerInfoPushURL, when set, receives the aggregated server info on a
	// schedule.
	ServerInfoPushURL string `toml:"server_info_push_url"`

	// ServerHealthPushURL, when set, receives healthy-set snapshots on a
	// schedule.
	ServerHealthPushURL string `toml:"server_health_push_url"`

	// Mcp lists the MCP tool servers to dial at startup.
	Mcp McpConfig `toml:"mcp"`

	// History optionally enables the chat-history store.
	History HistoryConfig `toml:"history"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. Default: "0.0.0.0".
	Host string `toml:"host"`

	// Port is the listen port. Default: 8080.
	Port int `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RagConfig configures the hybrid retrieval pipeline.
type RagConfig struct {
	// Enable turns retrieval on for chat requests.
	Enable bool `toml:"enable"`

	// Policy is "system-message" or "last-user-message".
	Policy string `toml:"policy"`

	// ContextWindow is the default count of trailing user turns used as the
	// vector query. Default: 1.
	ContextWindow uint64 `toml:"context_window"`

	// RagPrompt is an optional preamble placed before retrieved context.
	// Literal \n sequences are expanded to newlines at merge time.
	RagPrompt string `toml:"rag_prompt"`
}

// McpConfig wraps the mcp.server.tool array.
type McpConfig struct {
	Server McpServerConfig `toml:"server"`
}

// McpServerConfig holds the tool server list.
type McpServerConfig struct {
	Tool []McpToolServer `toml:"tool"`
}

// McpToolServer describes one MCP tool server.
type McpToolServer struct {
	// Name is the service name used in tool routing.
	Name string `toml:"name"`

	// Transport is sse, stdio or stream-http.
	Transport string `toml:"transport"`

	// URL is the endpoint for sse and stream-http transports.
	URL string `toml:"url"`

	// Command launches a stdio server.
	Command string `toml:"command"`

	// Enable gates dialing at startup.
	Enable bool `toml:"enable"`

	// FallbackMessage overrides the built-in search fallback text.
	FallbackMessage string `toml:"fallback_message"`
}

// HistoryConfig configures chat-history persistence.
type HistoryConfig struct {
	// Enable turns on recording of completed chat exchanges.
	Enable bool `toml:"enable"`

	// Path is the sqlite database file. Default: "nexus-history.db".
	Path string `toml:"path"`
}

// ApplyDefaults fills in default values for unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Rag != nil {
		if cfg.Rag.Policy == "" {
			cfg.Rag.Policy = "system-message"
		}
		if cfg.Rag.ContextWindow == 0 {
			cfg.Rag.ContextWindow = 1
		}
	}
	if cfg.History.Enable && cfg.History.Path == "" {
		cfg.History.Path = "nexus-history.db"
	}
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}

	if cfg.Rag != nil {
		switch cfg.Rag.Policy {
		case "system-message", "last-user-message":
		default:
			return fmt.Errorf("rag.policy %q is not one of system-message, last-user-message", cfg.Rag.Policy)
		}
	}

	for _, tool := range cfg.Mcp.Server.Tool {
		if tool.Name == "" {
			return fmt.Errorf("mcp.server.tool entries require a name")
		}
		switch tool.Transport {
		case "sse", "stream-http":
			if tool.URL == "" {
				return fmt.Errorf("mcp.server.tool %q requires a url for transport %q", tool.Name, tool.Transport)
			}
		case "stdio":
			if tool.Command == "" {
				return fmt.Errorf("mcp.server.tool %q requires a command for stdio transport", tool.Name)
			}
		default:
			return fmt.Errorf("mcp.server.tool %q has unsupported transport %q", tool.Name, tool.Transport)
		}
	}

	return nil
}
