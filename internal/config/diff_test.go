package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/mcpagent/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "ollama", Model: "qwen3:8b"}},
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{
			{Name: "tools", URL: "http://localhost:8000/sse"},
			{Name: "files", URL: "http://localhost:8002/sse"},
		}},
		Agent: config.AgentConfig{SystemPrompt: "be helpful"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	if d := config.Diff(baseConfig(), baseConfig()); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_Fields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(*testing.T, config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "model",
			mutate: func(c *config.Config) { c.Providers.LLM.Model = "qwen3:14b" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.ProviderChanged || d.AgentChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "tool timeout",
			mutate: func(c *config.Config) { c.Agent.ToolTimeout = time.Second },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.AgentChanged || d.ProviderChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "listen addr",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "server.listen_addr" {
					t.Errorf("RestartRequired = %v", d.RestartRequired)
				}
			},
		},
		{
			name:   "tls",
			mutate: func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "server.tls" {
					t.Errorf("RestartRequired = %v", d.RestartRequired)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tt.mutate(newCfg)
			tt.check(t, config.Diff(baseConfig(), newCfg))
		})
	}
}

func TestDiff_MCPServers(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.MCP.Servers = []config.MCPServerConfig{
		{Name: "tools", Transport: "sse", URL: "http://localhost:9000/sse"},
		{Name: "weather", Transport: "sse", URL: "http://localhost:8003/sse"},
	}

	d := config.Diff(baseConfig(), newCfg)
	if !d.MCPChanged {
		t.Fatal("MCPChanged = false")
	}
	want := []config.MCPServerDiff{
		{Name: "files", Removed: true},
		{Name: "tools", Changed: true},
		{Name: "weather", Added: true},
	}
	if len(d.MCPChanges) != len(want) {
		t.Fatalf("MCPChanges = %+v, want %+v", d.MCPChanges, want)
	}
	for i := range want {
		if d.MCPChanges[i] != want[i] {
			t.Errorf("MCPChanges[%d] = %+v, want %+v", i, d.MCPChanges[i], want[i])
		}
	}
}
