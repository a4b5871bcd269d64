package mcphost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// builtinServerName is the pseudo server name used for in-process tools.
const builtinServerName = "__builtin__"

// BuiltinTool represents a tool implemented as a Go function that runs
// in-process, without any network or subprocess round-trip.
type BuiltinTool struct {
	// Definition is the tool's public descriptor presented to the model. When
	// Parameters is set, call arguments are validated against it before the
	// handler runs.
	Definition types.ToolDefinition

	// Handler is invoked with a JSON object string (e.g. `{"city":"北京"}`).
	// A non-nil error is reported as a tool execution failure.
	Handler func(ctx context.Context, args string) (string, error)
}

// RegisterBuiltin registers a tool that is called in-process. A tool with the
// same name is replaced.
func (h *Host) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("mcp host: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("mcp host: builtin tool %q must have a non-nil handler", tool.Definition.Name)
	}

	var schema *gojsonschema.Schema
	if tool.Definition.Parameters != nil {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Definition.Parameters))
		if err != nil {
			return fmt.Errorf("mcp host: builtin tool %q has an invalid parameter schema: %w", tool.Definition.Name, err)
		}
		schema = s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Definition.Name] = toolEntry{
		def:        tool.Definition,
		serverName: builtinServerName,
		builtinFn:  tool.Handler,
		schema:     schema,
	}
	return nil
}

// callBuiltin validates args and runs the in-process handler.
func (h *Host) callBuiltin(ctx context.Context, entry toolEntry, args string) (string, error) {
	if args == "" {
		args = "{}"
	}
	if entry.schema != nil {
		res, err := entry.schema.Validate(gojsonschema.NewStringLoader(args))
		if err != nil {
			return "", &mcp.ToolExecutionError{Tool: entry.def.Name, Cause: fmt.Errorf("invalid arguments: %w", err)}
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			return "", &mcp.ToolExecutionError{
				Tool:  entry.def.Name,
				Cause: errors.New("invalid arguments: " + strings.Join(msgs, "; ")),
			}
		}
	}

	out, err := entry.builtinFn(ctx, args)
	if err != nil {
		return "", &mcp.ToolExecutionError{Tool: entry.def.Name, Cause: err}
	}
	return out, nil
}
