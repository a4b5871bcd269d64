package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mcpagent/internal/mcp"
)

// KnownLLMProviders lists the provider names registered by default. [Validate]
// warns about names outside this list.
var KnownLLMProviders = []string{"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// KnownBuiltinTools lists the tool names accepted in agent.builtin_tools.
var KnownBuiltinTools = []string{"get_weather", "list_files_in_directory"}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is [Load], except that an empty path yields [Default].
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: a local
// Ollama model and the tool host on localhost:8000.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field that has a default. With no tool
// source configured at all, the agent connects to the local tool host over
// SSE.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultProvider
	}
	if cfg.Agent.RequestTimeout == 0 {
		cfg.Agent.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = DefaultToolTimeout
	}
	if len(cfg.MCP.Servers) == 0 && len(cfg.Agent.BuiltinTools) == 0 {
		cfg.MCP.Servers = []MCPServerConfig{{
			Name:      "tools",
			Transport: mcp.TransportSSE,
			URL:       DefaultToolServerURL,
		}}
	}
	for i := range cfg.MCP.Servers {
		cfg.MCP.Servers[i].Transport = cfg.MCP.Servers[i].Transport.OrDefault()
	}
	if cfg.ToolServer.ListenAddr == "" {
		cfg.ToolServer.ListenAddr = DefaultToolServerListenAddr
	}
	cfg.ToolServer.Transport = cfg.ToolServer.Transport.OrDefault()
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName(cfg.Providers.LLM.Name)
	if e := cfg.Providers.LLM; e.Name == "openai" && e.APIKey == "" && e.BaseURL == "" {
		errs = append(errs, errors.New("providers.llm.api_key is required for the hosted openai provider; set base_url for a compatible server"))
	}

	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", cfg.Agent.Temperature))
	}
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens %d must not be negative", cfg.Agent.MaxTokens))
	}
	if cfg.Agent.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent.request_timeout %s must not be negative", cfg.Agent.RequestTimeout))
	}
	if cfg.Agent.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout %s must not be negative", cfg.Agent.ToolTimeout))
	}
	if cb := cfg.Agent.CircuitBreaker; cb.MaxFailures < 0 || cb.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("agent.circuit_breaker: max_failures %d and cooldown %s must not be negative", cb.MaxFailures, cb.Cooldown))
	}
	for i, name := range cfg.Agent.BuiltinTools {
		if !slices.Contains(KnownBuiltinTools, name) {
			errs = append(errs, fmt.Errorf("agent.builtin_tools[%d] %q is unknown; valid values: %v", i, name, KnownBuiltinTools))
		}
	}

	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: sse, streamable-http, stdio", prefix, srv.Transport))
		}
		switch srv.Transport.OrDefault() {
		case mcp.TransportStdio:
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case mcp.TransportSSE, mcp.TransportStreamableHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is %s", prefix, srv.Transport.OrDefault()))
			}
		}
	}

	if t := cfg.ToolServer.Transport; t != "" && !t.IsValid() {
		errs = append(errs, fmt.Errorf("toolserver.transport %q is invalid; valid values: sse, streamable-http, stdio", t))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning for names outside [KnownLLMProviders];
// a custom factory may still be registered under that name.
func validateProviderName(name string) {
	if name == "" || slices.Contains(KnownLLMProviders, name) {
		return
	}
	slog.Warn("unknown llm provider name; may be a typo or a custom provider",
		"name", name,
		"known", KnownLLMProviders,
	)
}
