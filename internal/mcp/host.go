// Package mcp defines the tool registry used by the agent: a host that
// connects to Model Context Protocol (MCP) servers, keeps a catalogue of the
// tools they offer, and executes tool calls on behalf of the model.
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each MCP server to connect to, and
//     optionally register in-process tools.
//  2. Use [Host.ListTools] to obtain the declarations offered to the model.
//  3. Use [Host.CallTool] to run tools the model asks for.
//  4. Call [Host.Close] to release all connections.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"
	"time"

	"github.com/MrWong99/mcpagent/pkg/types"
)

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the identifier for this server. Must be unique within a single
	// [Host]. Used in log messages and errors.
	Name string

	// Transport specifies the connection mechanism. Empty means [TransportSSE].
	Transport Transport

	// Command is the executable path and arguments used when Transport is
	// [TransportStdio], e.g. "/usr/local/bin/mcptools -transport stdio".
	Command string

	// URL is the endpoint address for the SSE and streamable HTTP transports,
	// e.g. "http://localhost:8000/sse".
	URL string

	// Env holds additional environment variables for a stdio server process.
	// May be nil.
	Env map[string]string
}

// ToolResult holds the outcome of a successful tool execution.
type ToolResult struct {
	// Content is the tool's textual output. It is returned unconditionally,
	// even when the text itself describes a logical error such as
	// {"error": "Directory not found"}.
	Content string

	// DurationMs is the wall-clock time from dispatch until the full response
	// was received.
	DurationMs int64
}

// ToolStats captures the measured runtime behaviour of a single tool over a
// rolling window of recent calls.
type ToolStats struct {
	Name      string  `json:"name"`
	Calls     int     `json:"calls"`
	ErrorRate float64 `json:"error_rate"`
	P50Ms     int64   `json:"p50_ms"`
	P99Ms     int64   `json:"p99_ms"`

	// LastCall is when the tool was last invoked.
	LastCall time.Time `json:"last_call"`

	// LastError is the most recent failure still inside the window.
	LastError string `json:"last_error,omitempty"`
}

// Host manages connections to MCP servers and routes tool calls.
type Host interface {
	// RegisterServer connects to the MCP server described by cfg, performs the
	// initialization handshake and imports its tool catalogue. A server with
	// the same Name is replaced. Failures wrap [ErrToolProtocol].
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// ListTools returns the declarations of all registered tools, sorted by
	// name.
	ListTools() []types.ToolDefinition

	// CallTool runs the named tool with a JSON object string of arguments.
	//
	// Errors:
	//   - [ErrUnknownTool] when name is not registered; nothing is recorded.
	//   - [*ToolExecutionError] when the tool's logic fails or the remote host
	//     flags the result as an error.
	//   - [ErrToolProtocol] when the exchange with the tool host breaks.
	CallTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Stats returns per-tool call statistics, sorted by name.
	Stats() []ToolStats

	// Close shuts down all server connections. The Host must not be used
	// afterwards.
	Close() error
}
