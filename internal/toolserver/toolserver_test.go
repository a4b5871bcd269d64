package toolserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/mcp/mcphost"
	"github.com/MrWong99/mcpagent/internal/mcp/tools"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/fileio"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/weather"
	"github.com/MrWong99/mcpagent/pkg/types"
)

func newTestServer(t *testing.T, extra ...tools.Tool) *Server {
	t.Helper()
	s := New(WithVersion("test"))
	all := append(weather.Tools(), fileio.NewTools()...)
	if err := s.Add(append(all, extra...)...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return s
}

func connectInMemory(t *testing.T, s *Server) *mcphost.Host {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverT)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	h := mcphost.New()
	t.Cleanup(func() { _ = h.Close() })
	if err := h.RegisterTransport(ctx, "tools", clientT); err != nil {
		t.Fatalf("RegisterTransport: %v", err)
	}
	return h
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()
	h := connectInMemory(t, newTestServer(t))

	defs := h.ListTools()
	if len(defs) != 2 {
		t.Fatalf("got %d tools, want 2", len(defs))
	}
	if defs[0].Name != weather.ToolName || defs[1].Name != fileio.ToolName {
		t.Errorf("tools = %q, %q", defs[0].Name, defs[1].Name)
	}
	props, _ := defs[0].Parameters["properties"].(map[string]any)
	if _, ok := props["city"]; !ok {
		t.Errorf("weather schema lost its city property: %v", defs[0].Parameters)
	}
}

func TestServer_CallWeather(t *testing.T) {
	t.Parallel()
	h := connectInMemory(t, newTestServer(t))

	tests := []struct {
		city string
		want string
	}{
		{"北京", "晴朗, 25°C"},
		{"火星", "未知城市: 火星"},
	}
	for _, tt := range tests {
		res, err := h.CallTool(context.Background(), weather.ToolName, `{"city":"`+tt.city+`"}`)
		if err != nil {
			t.Fatalf("%s: %v", tt.city, err)
		}
		if res.Content != tt.want {
			t.Errorf("%s: got %q, want %q", tt.city, res.Content, tt.want)
		}
	}
}

func TestServer_ListMissingDirectoryIsAResult(t *testing.T) {
	t.Parallel()
	h := connectInMemory(t, newTestServer(t))

	res, err := h.CallTool(context.Background(), fileio.ToolName, `{"directory_path":"/definitely/not/here"}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.Content != `{"error": "Directory not found"}` {
		t.Errorf("got %q", res.Content)
	}
}

func TestServer_HandlerErrorBecomesToolError(t *testing.T) {
	t.Parallel()
	failing := tools.Tool{
		Definition: types.ToolDefinition{Name: "explode", Parameters: map[string]any{"type": "object"}},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("kaboom")
		},
	}
	h := connectInMemory(t, newTestServer(t, failing))

	_, err := h.CallTool(context.Background(), "explode", `{}`)
	if !errors.Is(err, mcp.ErrToolExecution) {
		t.Fatalf("err = %v, want ErrToolExecution", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error message lost the cause: %v", err)
	}
}

func TestServer_AddValidation(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, string) (string, error) { return "", nil }
	tests := []struct {
		name string
		tool tools.Tool
	}{
		{"empty name", tools.Tool{Handler: noop}},
		{"no handler", tools.Tool{Definition: types.ToolDefinition{Name: "x"}}},
		{"array schema", tools.Tool{
			Definition: types.ToolDefinition{Name: "x", Parameters: map[string]any{"type": "array"}},
			Handler:    noop,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := New().Add(tt.tool); err == nil {
				t.Error("expected error")
			}
		})
	}

	s := New()
	if err := s.Add(tools.Tool{Definition: types.ToolDefinition{Name: "bare"}, Handler: noop}); err != nil {
		t.Errorf("nil schema should default to an object schema: %v", err)
	}
	if got := s.Tools(); len(got) != 1 || got[0] != "bare" {
		t.Errorf("Tools() = %v", got)
	}
}

func TestServer_HTTPTransports(t *testing.T) {
	t.Parallel()
	for _, transport := range []mcp.Transport{mcp.TransportSSE, mcp.TransportStreamableHTTP} {
		t.Run(string(transport), func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t)
			handler, path, err := s.Handler(transport)
			if err != nil {
				t.Fatalf("Handler: %v", err)
			}
			mux := http.NewServeMux()
			mux.Handle(path, handler)
			ts := httptest.NewServer(mux)
			t.Cleanup(ts.Close)

			h := mcphost.New()
			t.Cleanup(func() { _ = h.Close() })
			cfg := mcp.ServerConfig{Name: "tools", Transport: transport, URL: ts.URL + path}
			if err := h.RegisterServer(context.Background(), cfg); err != nil {
				t.Fatalf("RegisterServer: %v", err)
			}
			res, err := h.CallTool(context.Background(), weather.ToolName, `{"city":"纽约"}`)
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if res.Content != "多云, 18°C" {
				t.Errorf("got %q", res.Content)
			}
		})
	}
}

func TestServer_HandlerPaths(t *testing.T) {
	t.Parallel()
	s := New()
	if _, path, err := s.Handler(""); err != nil || path != SSEPath {
		t.Errorf("default transport: path=%q err=%v, want %q", path, err, SSEPath)
	}
	if _, _, err := s.Handler(mcp.TransportStdio); err == nil {
		t.Error("stdio must not produce an HTTP handler")
	}
}
