// Package ollama provides an LLM provider backed by a local Ollama server
// through its native chat API (github.com/ollama/ollama/api).
//
// Unlike the any-llm-go "ollama" backend, this provider implements
// [llm.Unloader] and [llm.Pinger]: the interactive chat unloads the model on
// exit and readiness probes use the server heartbeat.
//
// Ollama does not assign IDs to tool calls. The provider generates a UUID for
// each call so results can be correlated downstream; the tool name is carried
// alongside for the server's own name-based correlation.
//
// Usage:
//
//	p, err := ollama.New("", "qwen3:8b") // OLLAMA_HOST or http://localhost:11434
package ollama

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "qwen3:8b"

	// DefaultBaseURL is the address of a locally running Ollama server.
	DefaultBaseURL = "http://localhost:11434"
)

// Provider implements llm.Provider using the Ollama chat API.
type Provider struct {
	client    *api.Client
	model     string
	keepAlive *api.Duration
	options   map[string]any
	newID     func() string
}

// config holds optional configuration for the provider.
type config struct {
	httpClient *http.Client
	keepAlive  *time.Duration
	options    map[string]any
}

// Option is a functional option for Provider.
type Option func(*config)

// WithHTTPClient replaces the HTTP client used to reach the server.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithKeepAlive sets how long the server keeps the model loaded after each
// request. A negative value keeps it loaded indefinitely.
func WithKeepAlive(d time.Duration) Option {
	return func(cfg *config) {
		cfg.keepAlive = &d
	}
}

// WithOptions sets model runtime options (e.g. "num_ctx", "top_p") sent with
// every request.
func WithOptions(opts map[string]any) Option {
	return func(cfg *config) {
		cfg.options = maps.Clone(opts)
	}
}

// Ensure Provider implements the llm interfaces at compile time.
var (
	_ llm.Provider = (*Provider)(nil)
	_ llm.Unloader = (*Provider)(nil)
	_ llm.Pinger   = (*Provider)(nil)
)

// New constructs an Ollama provider. An empty baseURL falls back to the
// OLLAMA_HOST environment variable and then to http://localhost:11434.
// An empty model selects [DefaultModel].
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	var client *api.Client
	switch {
	case baseURL == "" && cfg.httpClient == nil:
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
		client = c
	default:
		if baseURL == "" {
			// ClientFromEnvironment has no hook for a custom HTTP client.
			baseURL = DefaultBaseURL
		}
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: invalid base URL %q: %w", baseURL, err)
		}
		hc := cfg.httpClient
		if hc == nil {
			hc = http.DefaultClient
		}
		client = api.NewClient(base, hc)
	}

	p := &Provider{
		client:  client,
		model:   model,
		options: cfg.options,
		newID:   uuid.NewString,
	}
	if cfg.keepAlive != nil {
		p.keepAlive = &api.Duration{Duration: *cfg.keepAlive}
	}
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chatReq, err := p.buildRequest(req, true)
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		var calls []types.ToolCall
		err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			out := llm.Chunk{Text: resp.Message.Content}

			got, err := p.convertToolCalls(resp.Message.ToolCalls)
			if err != nil {
				return err
			}
			calls = append(calls, got...)

			if resp.Done {
				out.FinishReason = finishReason(resp.DoneReason, len(calls) > 0)
				out.ToolCalls = calls
			}

			select {
			case ch <- out:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	chatReq, err := p.buildRequest(req, false)
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}

	var final api.ChatResponse
	var content string
	var raw []api.ToolCall
	err = p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		// A non-streaming request yields one response; accumulate anyway in
		// case the server ignores the flag.
		content += resp.Message.Content
		raw = append(raw, resp.Message.ToolCalls...)
		final = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}

	calls, err := p.convertToolCalls(raw)
	if err != nil {
		return nil, fmt.Errorf("ollama: decode tool calls: %w", err)
	}

	return &llm.CompletionResponse{
		Content:   content,
		ToolCalls: calls,
		Usage: llm.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

// Capabilities implements llm.Provider. Ollama models are assumed to support
// tool calling; the server rejects the request otherwise.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:       32_768,
		MaxOutputTokens:     8_192,
		SupportsToolCalling: true,
		SupportsStreaming:   true,
	}
}

// Unload implements llm.Unloader by sending an empty generate request with a
// zero keep-alive, which makes the server evict the model from memory.
func (p *Provider) Unload(ctx context.Context) error {
	req := &api.GenerateRequest{
		Model:     p.model,
		KeepAlive: &api.Duration{Duration: 0},
	}
	if err := p.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return fmt.Errorf("ollama: unload %q: %w", p.model, err)
	}
	return nil
}

// Ping implements llm.Pinger using the server heartbeat.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama: heartbeat: %w", err)
	}
	return nil
}

// buildRequest converts a CompletionRequest into an Ollama ChatRequest.
func (p *Provider) buildRequest(req llm.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	var msgs []types.Message
	if req.SystemPrompt != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)

	messages, err := convertMessages(msgs)
	if err != nil {
		return nil, err
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	options := maps.Clone(p.options)
	if req.Temperature != 0 {
		if options == nil {
			options = map[string]any{}
		}
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		if options == nil {
			options = map[string]any{}
		}
		options["num_predict"] = req.MaxTokens
	}

	return &api.ChatRequest{
		Model:     p.model,
		Messages:  messages,
		Tools:     tools,
		Stream:    &stream,
		KeepAlive: p.keepAlive,
		Options:   options,
	}, nil
}

// finishReason maps Ollama's done_reason onto the llm package vocabulary.
func finishReason(doneReason string, hasToolCalls bool) string {
	if hasToolCalls {
		return "tool_calls"
	}
	if doneReason == "" {
		return "stop"
	}
	return doneReason
}
