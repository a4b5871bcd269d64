package llm

import "github.com/MrWong99/mcpagent/pkg/types"

// maxStreamedToolCalls bounds the call index a backend may report.
const maxStreamedToolCalls = 128

// ToolCallAccumulator joins tool-call fragments from a streamed reply.
// Backends send the ID and name once and the arguments in pieces, keyed by
// the call's position in the reply. The zero value is ready to use.
type ToolCallAccumulator struct {
	calls []types.ToolCall
}

// Add merges one fragment into the call at idx. Fragments with a negative
// or implausibly large index are dropped.
func (a *ToolCallAccumulator) Add(idx int, id, name, args string) {
	if idx < 0 || idx >= maxStreamedToolCalls {
		return
	}
	for len(a.calls) <= idx {
		a.calls = append(a.calls, types.ToolCall{})
	}
	c := &a.calls[idx]
	if id != "" {
		c.ID = id
	}
	if name != "" {
		c.Name = name
	}
	c.Arguments += args
}

// Drain returns the calls collected so far and resets the accumulator.
func (a *ToolCallAccumulator) Drain() []types.ToolCall {
	out := a.calls
	a.calls = nil
	return out
}
