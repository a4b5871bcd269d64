package anyllm

import (
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// toParams builds the request. Zero temperature and max tokens stay unset so
// the backend default applies.
func toParams(model string, req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{Model: model}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toMessage(m))
	}
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type:     "function",
			Function: anyllmlib.Function{Name: td.Name, Description: td.Description, Parameters: td.Parameters},
		})
	}
	return params
}

// toMessage converts one history entry. Tool results carry the tool name
// because some backends match results by name rather than call ID.
func toMessage(m types.Message) anyllmlib.Message {
	out := anyllmlib.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	if m.Role == types.RoleTool {
		out.Name = m.ToolName
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, anyllmlib.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: anyllmlib.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return out
}
