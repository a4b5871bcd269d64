package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned by [Host.CallTool] when no registered tool has
	// the requested name.
	ErrUnknownTool = errors.New("mcp: unknown tool")

	// ErrToolExecution marks a failure inside the tool's own logic. Errors of
	// type [*ToolExecutionError] match it with errors.Is.
	ErrToolExecution = errors.New("mcp: tool execution failed")

	// ErrToolProtocol marks a failure talking to a tool host: connection,
	// initialization handshake, tool listing, or a broken call exchange.
	ErrToolProtocol = errors.New("mcp: tool protocol failure")
)

// ToolExecutionError reports that a tool ran but failed.
type ToolExecutionError struct {
	// Tool is the name of the failing tool.
	Tool string

	// Cause is the underlying failure, or the error text reported by a remote
	// tool host.
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("mcp: tool %q failed: %v", e.Tool, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrToolExecution) true for any *ToolExecutionError.
func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }
