package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/mcpagent/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"tls half configured", "server:\n  tls:\n    cert_file: c.pem\n", "server.tls"},
		{"openai without key", "providers:\n  llm:\n    name: openai\n", "api_key"},
		{"temperature", "agent:\n  temperature: 3\n", "agent.temperature"},
		{"max tokens", "agent:\n  max_tokens: -1\n", "agent.max_tokens"},
		{"negative timeout", "agent:\n  tool_timeout: -1s\n", "agent.tool_timeout"},
		{"negative breaker", "agent:\n  circuit_breaker:\n    max_failures: -2\n", "agent.circuit_breaker"},
		{"unknown builtin", "agent:\n  builtin_tools: [rm_rf]\n", "builtin_tools[0]"},
		{"server name", "mcp:\n  servers:\n    - url: http://x/sse\n", "mcp.servers[0].name"},
		{"sse without url", "mcp:\n  servers:\n    - name: a\n", "url is required"},
		{"stdio without command", "mcp:\n  servers:\n    - name: a\n      transport: stdio\n", "command is required"},
		{"bad transport", "mcp:\n  servers:\n    - name: a\n      transport: carrier-pigeon\n      url: http://x\n", "transport"},
		{"duplicate server", "mcp:\n  servers:\n    - name: a\n      url: http://x\n    - name: a\n      url: http://y\n", "duplicate"},
		{"toolserver transport", "toolserver:\n  transport: smoke-signal\n", "toolserver.transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
agent:
  temperature: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: my-custom\n")); err != nil {
		t.Errorf("unknown provider names should only warn, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9001" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file: err = %v, want not-exist", err)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestKnownLLMProviders(t *testing.T) {
	t.Parallel()
	for _, want := range []string{"ollama", "openai", "anthropic"} {
		found := false
		for _, n := range config.KnownLLMProviders {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("KnownLLMProviders should contain %q", want)
		}
	}
}
