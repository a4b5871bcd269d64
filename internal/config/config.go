// Package config provides the configuration schema, loader, hot-reload watcher
// and model provider registry for the mcpagent programs.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/mcpagent/internal/mcp"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr           = ":8001"
	DefaultToolServerListenAddr = ":8000"
	DefaultToolServerURL        = "http://localhost:8000/sse"
	DefaultProvider             = "ollama"
	DefaultRequestTimeout       = 120 * time.Second
	DefaultToolTimeout          = 30 * time.Second
)

// Config is the root configuration shared by all mcpagent binaries. Each
// binary reads the sections it needs.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	MCP        MCPConfig        `yaml:"mcp"`
	Agent      AgentConfig      `yaml:"agent"`
	ToolServer ToolServerConfig `yaml:"toolserver"`
}

// ServerConfig holds network and logging settings for the HTTP agent.
type ServerConfig struct {
	// ListenAddr is the TCP address the agent listens on. Default ":8001".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists allowed origins. Empty allows every origin.
	CORSOrigins []string `yaml:"cors_origins"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM file paths for serving HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the model backend.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry configures one provider. Name selects the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "ollama",
	// "openai", "anthropic").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint, e.g.
	// "http://gpu-box:11434" for a remote Ollama.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific settings. Decode them into a typed
	// struct with [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// MCPConfig lists the remote tool hosts the agent connects to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to reach a single MCP tool host.
type MCPServerConfig struct {
	Name string `yaml:"name"`

	// Transport is "sse" (default), "streamable-http" or "stdio".
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable and arguments started for stdio servers.
	Command string `yaml:"command"`

	// URL is the endpoint for sse and streamable-http servers, e.g.
	// "http://localhost:8000/sse".
	URL string `yaml:"url"`

	// Env holds extra environment variables for stdio subprocesses.
	Env map[string]string `yaml:"env"`
}

// ServerConfig converts the entry into the form the MCP host consumes.
func (c MCPServerConfig) ServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		Command:   c.Command,
		URL:       c.URL,
		Env:       c.Env,
	}
}

// AgentConfig controls the conversation loop.
type AgentConfig struct {
	// SystemPrompt is sent ahead of every request. Empty sends none.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is the sampling temperature. Zero keeps the model default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the reply length. Zero keeps the model default.
	MaxTokens int `yaml:"max_tokens"`

	// RequestTimeout bounds one HTTP chat turn. Default 120s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ToolTimeout bounds one tool call. Default 30s.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// BuiltinTools names tools served in-process in addition to the remote
	// tool hosts ("get_weather", "list_files_in_directory").
	BuiltinTools []string `yaml:"builtin_tools"`

	// CircuitBreaker stops calling an unreachable model for a while.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the model circuit breaker. Requests fail fast
// while it is open; nothing is retried.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive model failures that opens the
	// breaker. Zero disables it.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long the breaker stays open before a probe request is
	// let through. Default 30s.
	Cooldown time.Duration `yaml:"cooldown"`
}

// ToolServerConfig configures the MCP tool host binary.
type ToolServerConfig struct {
	// ListenAddr is the TCP address for the HTTP transports. Default ":8000".
	ListenAddr string `yaml:"listen_addr"`

	// Transport is "sse" (default), "streamable-http" or "stdio".
	Transport mcp.Transport `yaml:"transport"`

	// Name is announced during the MCP handshake. Default "MCPService".
	Name string `yaml:"name"`

	// Root confines list_files_in_directory to a directory tree. Empty
	// allows any directory.
	Root string `yaml:"root"`
}
