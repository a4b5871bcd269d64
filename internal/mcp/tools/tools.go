// Package tools defines the shared [Tool] type used by all built-in tool
// packages. Each sub-package exports a constructor returning [Tool] values
// that can be served by the MCP tool server or registered in-process with the
// MCP host.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpagent/internal/mcp/mcphost"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// Tool is a tool implementation together with its model-facing declaration.
type Tool struct {
	// Definition is the tool's schema: name, description and JSON Schema
	// parameters.
	Definition types.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns its
	// textual result. Implementations must be safe for concurrent use.
	Handler func(ctx context.Context, args string) (string, error)
}

// Builtin adapts t for in-process registration with an MCP host.
func (t Tool) Builtin() mcphost.BuiltinTool {
	return mcphost.BuiltinTool{Definition: t.Definition, Handler: t.Handler}
}

// DecodeArgs unmarshals a JSON argument object into v. An empty string is
// treated as "{}".
func DecodeArgs(name, args string, v any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("%s: failed to parse arguments: %w", name, err)
	}
	return nil
}
