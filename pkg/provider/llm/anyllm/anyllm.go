// Package anyllm runs the agent against hosted models (Anthropic, Gemini,
// DeepSeek, Mistral, Groq) and local llama.cpp or llamafile servers through
// github.com/mozilla-ai/any-llm-go.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

func adapt[P anyllmlib.Provider](f func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return f(opts...) }
}

var backends = map[string]constructor{
	"anthropic": adapt(anthropic.New),
	"deepseek":  adapt(deepseek.New),
	"gemini":    adapt(gemini.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
	"mistral":   adapt(mistral.New),
	"ollama":    adapt(ollama.New),
	"openai":    adapt(anyllmoai.New),
}

// Backends returns the accepted backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Provider implements [llm.Provider] on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New connects model on the named backend. opts are any-llm-go options such
// as anyllmlib.WithAPIKey; without a key each backend reads its usual
// environment variable.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	mk, ok := backends[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q; supported: %s", backend, strings.Join(Backends(), ", "))
	}
	b, err := mk(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", backend, err)
	}
	return &Provider{backend: b, model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, toParams(p.model, req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: response has no choices")
	}

	msg := resp.Choices[0].Message
	out := &llm.CompletionResponse{Content: msg.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out, nil
}

// StreamCompletion implements [llm.Provider]. Tool calls are emitted whole
// on the final chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks, errs := p.backend.CompletionStream(ctx, toParams(p.model, req))

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		emit := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var calls llm.ToolCallAccumulator
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			for i, tc := range choice.Delta.ToolCalls {
				calls.Add(i, tc.ID, tc.Function.Name, tc.Function.Arguments)
			}
			out := llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}
			if out.FinishReason != "" {
				out.ToolCalls = calls.Drain()
			}
			if !emit(out) {
				return
			}
		}
		if err := <-errs; err != nil {
			emit(llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()})
		}
	}()
	return ch, nil
}

// Capabilities implements [llm.Provider]. Limits vary per hosted model and
// are not tracked here.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{SupportsToolCalling: true, SupportsStreaming: true}
}
