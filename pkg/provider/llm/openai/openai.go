// Package openai talks to any server speaking the OpenAI Chat Completions
// protocol: the hosted API, Ollama's /v1 endpoint, vLLM, LM Studio.
//
// Requests are never retried; a failed call surfaces immediately.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// Provider implements [llm.Provider] and [llm.Pinger].
type Provider struct {
	client        oai.Client
	model         string
	contextWindow int
}

var (
	_ llm.Provider = (*Provider)(nil)
	_ llm.Pinger   = (*Provider)(nil)
)

type settings struct {
	baseURL       string
	organization  string
	timeout       time.Duration
	contextWindow int
	httpClient    *http.Client
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the provider at a compatible server, e.g.
// "http://localhost:11434/v1". Without it the hosted API is used and an API
// key is required.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sends the organization header on every request.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithContextWindow reports n as the model's context window from
// Capabilities.
func WithContextWindow(n int) Option {
	return func(s *settings) { s.contextWindow = n }
}

// WithHTTPClient sends requests through c. WithTimeout is ignored when set.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// New returns a provider for model. apiKey may be empty when a base URL is
// given, since most self-hosted servers do not check it.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	var s settings
	for _, o := range opts {
		o(&s)
	}
	if apiKey == "" && s.baseURL == "" {
		return nil, errors.New("openai: an API key is required without a base URL")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(s.baseURL, "/")+"/"))
	}
	if s.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(s.organization))
	}
	switch {
	case s.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(s.httpClient))
	case s.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{
		client:        oai.NewClient(reqOpts...),
		model:         model,
		contextWindow: s.contextWindow,
	}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := toParams(p.model, req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return fromCompletion(resp)
}

// StreamCompletion implements [llm.Provider]. Tool calls arrive in fragments
// and are emitted whole on the final chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := toParams(p.model, req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		emit := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var calls llm.ToolCallAccumulator
		for stream.Next() {
			cur := stream.Current()
			if len(cur.Choices) == 0 {
				continue
			}
			choice := cur.Choices[0]
			for _, tc := range choice.Delta.ToolCalls {
				calls.Add(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
			}
			out := llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}
			if out.FinishReason != "" {
				out.ToolCalls = calls.Drain()
			}
			if !emit(out) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			emit(llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()})
		}
	}()
	return ch, nil
}

// Capabilities implements [llm.Provider]. Compatible servers do not describe
// their models, so only what the protocol guarantees is reported.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:       p.contextWindow,
		SupportsToolCalling: true,
		SupportsStreaming:   true,
	}
}

// Ping lists the served models.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: list models: %w", err)
	}
	return nil
}
