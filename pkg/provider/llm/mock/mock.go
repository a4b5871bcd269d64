// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the coordinator sends correct
// CompletionRequests and to feed controlled responses without a live model
// server. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{
//	        {ToolCalls: []types.ToolCall{{ID: "1", Name: "get_weather", Arguments: `{"city":"北京"}`}}},
//	        {Content: "It is sunny."},
//	    },
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete. Messages and Tools are
	// copied so later appends by the caller do not show up here.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider, llm.Unloader and llm.Pinger.
// Zero values for response fields cause methods to return zero values and nil errors.
// Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// StreamChunks is the sequence of Chunk values emitted on the channel returned
	// by StreamCompletion. All chunks are sent before the channel is closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamCompletion instead
	// of starting a channel.
	StreamErr error

	// CompleteResponses is consumed in order, one per Complete call. Once
	// exhausted, CompleteResponse is returned.
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is returned by Complete when CompleteResponses is empty.
	// May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteErrAt, if > 0, makes only the n-th Complete call (1-based) return
	// CompleteErr. Earlier and later calls succeed.
	CompleteErrAt int

	// UnloadErr, if non-nil, is returned by Unload.
	UnloadErr error

	// PingErr, if non-nil, is returned by Ping.
	PingErr error

	// ModelCapabilities is returned by Capabilities when non-zero.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// UnloadCallCount is the number of times Unload was called.
	UnloadCallCount int

	// PingCallCount is the number of times Ping was called.
	PingCallCount int
}

// StreamCompletion records the call and returns a channel that emits StreamChunks.
// If StreamErr is set, it returns nil, StreamErr without opening a channel.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: copyRequest(req)})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := slices.Clone(p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: copyRequest(req)})

	if p.CompleteErr != nil && (p.CompleteErrAt == 0 || p.CompleteErrAt == len(p.CompleteCalls)) {
		return nil, p.CompleteErr
	}
	if len(p.CompleteResponses) > 0 {
		resp := p.CompleteResponses[0]
		p.CompleteResponses = p.CompleteResponses[1:]
		return resp, nil
	}
	return p.CompleteResponse, nil
}

// Capabilities returns ModelCapabilities. Left zero, the mock claims tool
// calling and streaming support.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelCapabilities == (types.ModelCapabilities{}) {
		return types.ModelCapabilities{SupportsToolCalling: true, SupportsStreaming: true}
	}
	return p.ModelCapabilities
}

// Unload records the call and returns UnloadErr.
func (p *Provider) Unload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UnloadCallCount++
	return p.UnloadErr
}

// Ping records the call and returns PingErr.
func (p *Provider) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PingCallCount++
	return p.PingErr
}

// Calls returns a snapshot of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
	p.CompleteCalls = nil
	p.UnloadCallCount = 0
	p.PingCallCount = 0
}

func copyRequest(req llm.CompletionRequest) llm.CompletionRequest {
	req.Messages = slices.Clone(req.Messages)
	req.Tools = slices.Clone(req.Tools)
	return req
}

// Ensure Provider implements the llm interfaces at compile time.
var (
	_ llm.Provider = (*Provider)(nil)
	_ llm.Unloader = (*Provider)(nil)
	_ llm.Pinger   = (*Provider)(nil)
)
