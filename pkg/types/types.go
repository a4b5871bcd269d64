// Package types defines the shared types used across all mcpagent packages.
//
// These types form the lingua franca between the model providers, the MCP tool
// host, and the agent coordinator. Each package defines its own domain types;
// cross-cutting data structures live here to avoid circular imports.
package types

// Message roles used in a conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string

	// ToolName is set when Role is "tool" and names the tool that produced Content.
	// Some backends (Ollama) correlate results by name rather than by ID.
	ToolName string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call. Backends that do not
	// assign IDs get a generated one so results can still be correlated.
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments object.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	// It arrives at runtime from tool discovery and is kept as untyped data.
	Parameters map[string]any
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
