// Package mcphost provides a concrete implementation of the [mcp.Host]
// interface.
//
// It connects to MCP servers over SSE, streamable HTTP or stdio using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), keeps a
// concurrent-safe in-memory tool registry, and records per-tool latency and
// error rates in rolling windows.
//
// Typical usage:
//
//	h := mcphost.New()
//	defer h.Close()
//
//	err := h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name: "tools",
//	    URL:  "http://localhost:8000/sse",
//	})
//
//	decls := h.ListTools()
//	res, err := h.CallTool(ctx, "get_weather", `{"city":"北京"}`)
package mcphost

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// clientName identifies this host in the MCP initialization handshake.
const clientName = "mcpagent"

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def        types.ToolDefinition
	serverName string

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
	schema    *gojsonschema.Schema
}

// Host is a concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry             // key: tool name
	servers map[string]*mcpsdk.ClientSession // key: server name

	// client is reused across all server connections. The SDK allows a
	// single Client to manage multiple sessions concurrently.
	client   *mcpsdk.Client
	recorder *Recorder
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// Option configures a [Host].
type Option func(*Host)

// WithRecorder makes the host record call statistics into r instead of a
// private recorder. Share one Recorder between short-lived hosts to keep
// statistics across them.
func WithRecorder(r *Recorder) Option {
	return func(h *Host) {
		h.recorder = r
	}
}

// WithClientVersion sets the version reported in the initialization
// handshake.
func WithClientVersion(v string) Option {
	return func(h *Host) {
		h.client = mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: v}, nil)
	}
}

// New creates and returns a ready-to-use Host.
func New(opts ...Option) *Host {
	h := &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]*mcpsdk.ClientSession),
		client:  mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: "1.0.0"}, nil),
	}
	for _, o := range opts {
		o(h)
	}
	if h.recorder == nil {
		h.recorder = NewRecorder(DefaultStatsWindow)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue. If a server with the same Name is already registered, the
// old connection is closed and its tools are replaced.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	transport, err := buildTransport(cfg)
	if err != nil {
		return err
	}
	return h.RegisterTransport(ctx, cfg.Name, transport)
}

func buildTransport(cfg mcp.ServerConfig) (mcpsdk.Transport, error) {
	kind := cfg.Transport.OrDefault()
	if !kind.IsValid() {
		return nil, fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	switch kind {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcp host: stdio server %q requires a non-empty command", cfg.Name)
		}
		// The process must outlive the registering context; Close ends it.
		cmd := exec.Command(executable, args...)
		cmd.Env = os.Environ()
		for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
			cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil

	default:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: sse server %q requires a non-empty URL", cfg.Name)
		}
		return &mcpsdk.SSEClientTransport{Endpoint: cfg.URL}, nil
	}
}

// RegisterTransport connects over an already constructed SDK transport and
// imports the server's tools under the given server name. RegisterServer uses
// it after building the transport from a [mcp.ServerConfig]; tests and
// in-process setups may pass e.g. an in-memory transport directly.
func (h *Host) RegisterTransport(ctx context.Context, name string, transport mcpsdk.Transport) error {
	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("%w: connect to server %q: %w", mcp.ErrToolProtocol, name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("%w: list tools of server %q: %w", mcp.ErrToolProtocol, name, err)
		}
		discovered = append(discovered, tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[name]; ok {
		_ = old.Close()
		for toolName, t := range h.tools {
			if t.serverName == name {
				delete(h.tools, toolName)
			}
		}
	}
	h.servers[name] = session

	for _, t := range discovered {
		h.tools[t.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: name,
		}
	}
	return nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	fallback := map[string]any{"type": "object"}
	if schema == nil {
		return fallback
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return fallback
	}
	return m
}

// ListTools returns all registered tool declarations sorted by name.
func (h *Host) ListTools() []types.ToolDefinition {
	h.mu.RLock()
	defs := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	h.mu.RUnlock()

	slices.SortFunc(defs, func(a, b types.ToolDefinition) int { return cmp.Compare(a.Name, b.Name) })
	return defs
}

// CallTool runs the named tool. See [mcp.Host.CallTool] for the error
// contract.
func (h *Host) CallTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", mcp.ErrUnknownTool, name)
	}

	start := time.Now()
	var content string
	var err error
	if entry.builtinFn != nil {
		content, err = h.callBuiltin(ctx, entry, args)
	} else {
		content, err = h.callRemote(ctx, entry, args)
	}
	elapsed := time.Since(start)
	durationMs := elapsed.Milliseconds()

	h.recorder.Record(name, elapsed, err)
	if err != nil {
		return nil, err
	}
	return &mcp.ToolResult{Content: content, DurationMs: durationMs}, nil
}

// callRemote routes the call to the session of the server that owns the tool.
func (h *Host) callRemote(ctx context.Context, entry toolEntry, args string) (string, error) {
	h.mu.RLock()
	session, ok := h.servers[entry.serverName]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: server %q for tool %q is gone", mcp.ErrToolProtocol, entry.serverName, entry.def.Name)
	}

	argsMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return "", &mcp.ToolExecutionError{Tool: entry.def.Name, Cause: fmt.Errorf("arguments are not a JSON object: %w", err)}
		}
	}

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return "", fmt.Errorf("%w: call tool %q: %w", mcp.ErrToolProtocol, entry.def.Name, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", &mcp.ToolExecutionError{Tool: entry.def.Name, Cause: errors.New(text)}
	}
	return text, nil
}

// joinText concatenates all text parts of a tool result.
func joinText(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// Stats returns rolling-window statistics for every tool called so far.
func (h *Host) Stats() []mcp.ToolStats {
	return h.recorder.Snapshot()
}

// Close shuts down all server connections and clears the registry.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, session := range h.servers {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp host: close server %q: %w", name, err))
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]toolEntry)
	return errors.Join(errs...)
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
