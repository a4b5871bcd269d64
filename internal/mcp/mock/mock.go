// Package mock provides an in-memory test double for the [mcp.Host] interface.
//
// [Host] records every method call for assertion in tests and exposes exported
// fields that control what the mock returns. It is safe for concurrent use via
// an internal [sync.Mutex].
//
// Typical usage:
//
//	h := &mock.Host{
//	    Tools:   []types.ToolDefinition{{Name: "get_weather"}},
//	    Results: map[string]*mcp.ToolResult{"get_weather": {Content: "晴朗, 25°C"}},
//	}
//
//	// inject h into the system under test …
//
//	if got := h.CallCount("CallTool"); got != 1 {
//	    t.Errorf("expected 1 CallTool call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Host is a configurable test double for [mcp.Host].
type Host struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// RegisterServerErr is returned by [Host.RegisterServer] when non-nil.
	RegisterServerErr error

	// Tools is returned by [Host.ListTools]. It also defines which names
	// CallTool knows: a name missing from Tools yields [mcp.ErrUnknownTool].
	Tools []types.ToolDefinition

	// Results maps tool names to the result returned by CallTool. A known
	// tool without an entry returns an empty result.
	Results map[string]*mcp.ToolResult

	// Errs maps tool names to an error returned by CallTool.
	Errs map[string]error

	// StatsResult is returned by [Host.Stats].
	StatsResult []mcp.ToolStats

	// CloseErr is returned by [Host.Close] when non-nil.
	CloseErr error
}

// Calls returns a copy of all recorded method invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ToolCalls returns the tool names passed to CallTool, in order.
func (h *Host) ToolCalls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if c.Method == "CallTool" {
			out = append(out, c.Args[0].(string))
		}
	}
	return out
}

// Reset clears all recorded calls without altering response configuration.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// RegisterServer implements [mcp.Host].
func (h *Host) RegisterServer(_ context.Context, cfg mcp.ServerConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "RegisterServer", Args: []any{cfg}})
	return h.RegisterServerErr
}

// ListTools implements [mcp.Host].
func (h *Host) ListTools() []types.ToolDefinition {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "ListTools"})
	return slices.Clone(h.Tools)
}

// CallTool implements [mcp.Host].
func (h *Host) CallTool(_ context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "CallTool", Args: []any{name, args}})

	known := slices.ContainsFunc(h.Tools, func(d types.ToolDefinition) bool { return d.Name == name })
	if !known {
		return nil, fmt.Errorf("%w: %q", mcp.ErrUnknownTool, name)
	}
	if err := h.Errs[name]; err != nil {
		return nil, err
	}
	res, ok := h.Results[name]
	if !ok || res == nil {
		return &mcp.ToolResult{}, nil
	}
	// Return a copy so the caller cannot mutate the configured result.
	cp := *res
	return &cp, nil
}

// Stats implements [mcp.Host].
func (h *Host) Stats() []mcp.ToolStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "Stats"})
	return slices.Clone(h.StatsResult)
}

// Close implements [mcp.Host].
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: "Close"})
	return h.CloseErr
}

// Ensure Host satisfies the interface at compile time.
var _ mcp.Host = (*Host)(nil)
