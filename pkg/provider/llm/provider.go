// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance by
// default, or any backend reachable through any-llm-go or the OpenAI SDK) and
// exposes a uniform interface for the agent to perform completions without
// coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/mcpagent/pkg/types"
)

// FinishReasonError is the FinishReason carried by the final Chunk when the
// stream broke after it was opened. The chunk's Text holds the error message.
const FinishReasonError = "error"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. It is replayed verbatim on
	// every request.
	Messages []types.Message

	// Tools is the set of function/tool definitions offered to the model. The model
	// may choose to call one or more of them in its response. A nil slice offers
	// no tools at all.
	Tools []types.ToolDefinition

	// Temperature controls output randomness. Zero means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction injected before the conversation
	// history as a "system"-role message. It is never part of the history itself.
	SystemPrompt string
}

// Chunk is a single token or fragment emitted by a streaming completion.
// A single chunk may carry text, a finish signal, tool calls, or any
// combination thereof.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk and indicates why generation stopped.
	// Common values are "stop", "length", "tool_calls", [FinishReasonError] and
	// "" (non-final chunk).
	FinishReason string

	// ToolCalls contains any tool invocations the model is requesting. Streaming
	// providers emit the accumulated calls on the final chunk.
	ToolCalls []types.ToolCall
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model, in the order
	// the model emitted them.
	ToolCalls []types.ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel that
	// emits Chunk values as they arrive. The channel is closed by the implementation
	// when generation finishes or when ctx is cancelled.
	//
	// Errors that occur after the channel is opened are surfaced as a Chunk with
	// FinishReason [FinishReasonError]; the initial error return is non-nil only
	// for failures that prevent the stream from starting.
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports.
	Capabilities() types.ModelCapabilities
}

// Unloader is implemented by providers backed by a local serving process that
// keeps the model resident in memory between requests.
type Unloader interface {
	// Unload asks the serving process to release the model.
	Unload(ctx context.Context) error
}

// Pinger is implemented by providers that can cheaply check whether the
// serving process is reachable. Used by readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}
