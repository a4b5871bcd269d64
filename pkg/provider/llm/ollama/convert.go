package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/mcpagent/pkg/types"
)

// The api package reshapes its tool and argument types between releases
// (plain maps, ordered maps, property structs). Conversion goes through the
// stable JSON wire format instead of touching those Go types directly.

type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

// convertMessages maps history messages onto Ollama chat messages.
func convertMessages(msgs []types.Message) ([]api.Message, error) {
	wire := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: m.Role, Content: m.Content}
		if m.Role == types.RoleTool {
			wm.ToolName = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args := tc.Arguments
			if args == "" {
				args = "{}"
			}
			if !json.Valid([]byte(args)) {
				return nil, fmt.Errorf("tool call %q: arguments are not valid JSON", tc.Name)
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				Function: wireFunction{Name: tc.Name, Arguments: json.RawMessage(args)},
			})
		}
		wire = append(wire, wm)
	}

	var out []api.Message
	if err := roundTrip(wire, &out); err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}
	return out, nil
}

// convertTools maps tool definitions onto Ollama function tools. A nil or
// empty slice yields nil so no tools field is sent.
func convertTools(defs []types.ToolDefinition) (api.Tools, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	wire := make([]wireTool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		wire = append(wire, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}

	var out api.Tools
	if err := roundTrip(wire, &out); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return out, nil
}

// convertToolCalls maps Ollama tool calls back onto types.ToolCall, assigning
// an ID to any call that lacks one.
func (p *Provider) convertToolCalls(calls []api.ToolCall) ([]types.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	var wire []wireToolCall
	if err := roundTrip(calls, &wire); err != nil {
		return nil, fmt.Errorf("convert tool calls: %w", err)
	}

	out := make([]types.ToolCall, 0, len(wire))
	for _, w := range wire {
		id := w.ID
		if id == "" {
			id = p.newID()
		}
		args := string(w.Function.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		out = append(out, types.ToolCall{ID: id, Name: w.Function.Name, Arguments: args})
	}
	return out, nil
}

func roundTrip(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
