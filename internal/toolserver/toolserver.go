// Package toolserver exposes [tools.Tool] values as an MCP server that remote
// agents can discover and call over SSE, streamable HTTP or stdio.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/mcp/tools"
	"github.com/MrWong99/mcpagent/internal/observe"
)

// DefaultName is the implementation name announced during the handshake.
const DefaultName = "MCPService"

// Endpoint paths for the HTTP transports.
const (
	SSEPath        = "/sse"
	StreamablePath = "/mcp"
)

// Option configures a [Server].
type Option func(*Server)

// WithName overrides [DefaultName].
func WithName(name string) Option {
	return func(s *Server) { s.name = name }
}

// WithVersion sets the announced implementation version.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics records tool calls to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is an MCP server hosting a fixed set of tools.
type Server struct {
	name    string
	version string
	metrics *observe.Metrics
	srv     *mcpsdk.Server
	names   []string
}

// New creates an empty server. Add tools with [Server.Add].
func New(opts ...Option) *Server {
	s := &Server{name: DefaultName, version: "dev"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: s.name, Version: s.version}, nil)
	return s
}

// Add registers ts. A tool without a name, or whose parameter schema is not
// an object schema, is rejected.
func (s *Server) Add(ts ...tools.Tool) error {
	for _, t := range ts {
		def := t.Definition
		if def.Name == "" {
			return errors.New("toolserver: tool name must not be empty")
		}
		if t.Handler == nil {
			return fmt.Errorf("toolserver: tool %q has no handler", def.Name)
		}
		schema := def.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		if typ, _ := schema["type"].(string); typ != "object" {
			return fmt.Errorf("toolserver: tool %q: parameter schema must have type \"object\"", def.Name)
		}
		s.srv.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, s.handler(t))
		s.names = append(s.names, def.Name)
	}
	return nil
}

// Tools returns the names of the registered tools in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.names...)
}

// handler adapts a tool to the SDK. Tool failures become error results so
// the calling model sees the message; they are not protocol errors.
func (s *Server) handler(t tools.Tool) mcpsdk.ToolHandler {
	name := t.Definition.Name
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		start := time.Now()
		out, err := t.Handler(ctx, args)
		s.metrics.RecordToolCall(ctx, name, time.Since(start).Seconds(), err)
		if err != nil {
			slog.Warn("tool failed", "tool", name, "err", err)
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		slog.Debug("tool served", "tool", name, "duration", time.Since(start))
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

// Connect serves one session over transport until the peer disconnects.
func (s *Server) Connect(ctx context.Context, transport mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.srv.Connect(ctx, transport, nil)
}

// Handler returns the HTTP handler for transport and the path to mount it on.
// Stdio has no HTTP handler; use [Server.RunStdio].
func (s *Server) Handler(transport mcp.Transport) (http.Handler, string, error) {
	get := func(*http.Request) *mcpsdk.Server { return s.srv }
	switch transport.OrDefault() {
	case mcp.TransportSSE:
		return mcpsdk.NewSSEHandler(get, nil), SSEPath, nil
	case mcp.TransportStreamableHTTP:
		return mcpsdk.NewStreamableHTTPHandler(get, nil), StreamablePath, nil
	default:
		return nil, "", fmt.Errorf("toolserver: transport %q is not served over HTTP", transport)
	}
}

// RunStdio serves a single session on stdin/stdout until ctx is cancelled
// or the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.srv.Run(ctx, &mcpsdk.StdioTransport{})
}
