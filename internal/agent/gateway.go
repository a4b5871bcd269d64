package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/mcpagent/internal/observe"
	"github.com/MrWong99/mcpagent/internal/resilience"
	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// ReplyKind tells a final answer apart from a tool-call request.
type ReplyKind int

const (
	// ReplyFinal carries literal content for the user.
	ReplyFinal ReplyKind = iota
	// ReplyToolCalls carries one or more tool invocations.
	ReplyToolCalls
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyFinal:
		return "final"
	case ReplyToolCalls:
		return "tool_calls"
	default:
		return fmt.Sprintf("ReplyKind(%d)", int(k))
	}
}

// Reply is the outcome of a non-streaming model request.
type Reply struct {
	Kind    ReplyKind
	Content string
	Calls   []types.ToolCall

	// Assistant is the message exactly as the model produced it, tool calls
	// included. It is what gets appended to history for a tool-call reply.
	Assistant types.Message
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithSystemPrompt sends prompt as a system message ahead of the history.
// It is never stored in the history itself.
func WithSystemPrompt(prompt string) GatewayOption {
	return func(g *Gateway) { g.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature. Zero leaves the backend
// default in place.
func WithTemperature(t float64) GatewayOption {
	return func(g *Gateway) { g.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves the backend default.
func WithMaxTokens(n int) GatewayOption {
	return func(g *Gateway) { g.maxTokens = n }
}

// WithProviderName labels metrics with name instead of "llm".
func WithProviderName(name string) GatewayOption {
	return func(g *Gateway) { g.providerName = name }
}

// WithGatewayMetrics records request metrics to m instead of
// [observe.DefaultMetrics].
func WithGatewayMetrics(m *observe.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithBreaker fails requests fast with [ErrModelUnavailable] while b is
// open. Cancelled requests and abandoned streams do not count as failures.
func WithBreaker(b *resilience.Breaker) GatewayOption {
	return func(g *Gateway) { g.breaker = b }
}

// Gateway is the single point through which the agent talks to the model.
// It is safe for concurrent use as long as the provider is.
type Gateway struct {
	provider     llm.Provider
	systemPrompt string
	temperature  float64
	maxTokens    int
	providerName string
	metrics      *observe.Metrics
	breaker      *resilience.Breaker
}

// NewGateway wraps provider.
func NewGateway(provider llm.Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{provider: provider, providerName: "llm"}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// admit consults the breaker. The returned func reports the outcome.
func (g *Gateway) admit() (func(error), error) {
	if g.breaker == nil {
		return func(error) {}, nil
	}
	done, err := g.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return func(err error) {
		if errors.Is(err, context.Canceled) || errors.Is(err, errStreamClosed) {
			err = resilience.ErrIgnored
		}
		done(err)
	}, nil
}

func (g *Gateway) request(history []types.Message, tools []types.ToolDefinition) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:     history,
		Tools:        tools,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
		SystemPrompt: g.systemPrompt,
	}
}

// Send asks the model to answer history, offering tools. A nil tools slice
// offers none, and so does a provider without tool calling support. Every failure wraps [ErrModelUnavailable].
func (g *Gateway) Send(ctx context.Context, history []types.Message, tools []types.ToolDefinition) (Reply, error) {
	ctx, span := observe.StartSpan(ctx, "gateway.send")
	done, err := g.admit()
	if err != nil {
		observe.EndSpan(span, err)
		return Reply{}, err
	}
	if len(tools) > 0 && !g.provider.Capabilities().SupportsToolCalling {
		observe.Logger(ctx).Debug("model cannot call tools, offering none", "provider", g.providerName)
		tools = nil
	}
	start := time.Now()
	resp, err := g.provider.Complete(ctx, g.request(history, tools))
	done(err)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	g.metrics.RecordProviderRequest(ctx, g.providerName, "send", time.Since(start).Seconds(), err)
	observe.EndSpan(span, err)
	if err != nil {
		return Reply{}, err
	}
	if resp == nil {
		resp = &llm.CompletionResponse{}
	}

	assistant := types.Message{
		Role:      types.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
	if len(resp.ToolCalls) > 0 {
		return Reply{Kind: ReplyToolCalls, Content: resp.Content, Calls: resp.ToolCalls, Assistant: assistant}, nil
	}
	return Reply{Kind: ReplyFinal, Content: resp.Content, Assistant: assistant}, nil
}

// SendStreaming asks the model to answer history without tools and returns
// the reply as a [Stream] of text fragments.
func (g *Gateway) SendStreaming(ctx context.Context, history []types.Message) (*Stream, error) {
	done, err := g.admit()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ch, err := g.provider.StreamCompletion(ctx, g.request(history, nil))
	if err != nil {
		done(err)
		err = fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		g.metrics.RecordProviderRequest(ctx, g.providerName, "stream", time.Since(start).Seconds(), err)
		return nil, err
	}
	return &Stream{
		ctx: ctx,
		ch:  ch,
		onDone: func(err error) {
			done(err)
			g.metrics.RecordProviderRequest(ctx, g.providerName, "stream", time.Since(start).Seconds(), err)
		},
	}, nil
}

// Unload releases the model from the serving process when the backend
// supports it. Other backends return nil.
func (g *Gateway) Unload(ctx context.Context) error {
	u, ok := g.provider.(llm.Unloader)
	if !ok {
		return nil
	}
	if err := u.Unload(ctx); err != nil {
		return fmt.Errorf("%w: unload: %w", ErrModelUnavailable, err)
	}
	return nil
}

// Ping checks that the serving process answers. Backends without a cheap
// check report healthy.
func (g *Gateway) Ping(ctx context.Context) error {
	p, ok := g.provider.(llm.Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return nil
}

var errStreamClosed = errors.New("agent: stream closed")

// Stream is a finite, single-use sequence of reply fragments. It must be
// read by one goroutine; call [Stream.Close] when abandoning it early.
type Stream struct {
	ctx    context.Context
	ch     <-chan llm.Chunk
	onDone func(error)

	started  bool
	finished bool
	err      error
	once     sync.Once
}

// Next returns the next non-empty fragment. It returns false once the reply
// is complete or broken; check [Stream.Err] afterwards.
func (s *Stream) Next() (string, bool) {
	s.started = true
	for !s.finished {
		chunk, ok := <-s.ch
		if !ok {
			if err := s.ctx.Err(); err != nil {
				s.finish(fmt.Errorf("agent: stream: %w", err))
			} else {
				s.finish(nil)
			}
			break
		}
		if chunk.FinishReason == llm.FinishReasonError {
			s.finish(fmt.Errorf("%w: %w", ErrModelUnavailable, errors.New(chunk.Text)))
			break
		}
		if chunk.FinishReason != "" {
			s.finish(nil)
			// The last chunk may still carry text.
			if chunk.Text != "" {
				return chunk.Text, true
			}
			break
		}
		if chunk.Text != "" {
			return chunk.Text, true
		}
	}
	return "", false
}

// Err reports why the stream ended early, or nil.
func (s *Stream) Err() error {
	return s.err
}

// Collect reads the whole stream and returns the concatenated reply. It
// fails with [ErrStreamConsumed] when the stream has already been read.
func (s *Stream) Collect() (string, error) {
	if s.started {
		return "", ErrStreamConsumed
	}
	var b strings.Builder
	for {
		frag, ok := s.Next()
		if !ok {
			break
		}
		b.WriteString(frag)
	}
	if s.err != nil {
		return "", s.err
	}
	return b.String(), nil
}

// Close abandons the stream. Remaining fragments are discarded in the
// background so the provider is never blocked.
func (s *Stream) Close() {
	s.started = true
	if s.finished {
		return
	}
	s.finish(errStreamClosed)
	go func(ch <-chan llm.Chunk) {
		for range ch {
		}
	}(s.ch)
}

func (s *Stream) finish(err error) {
	s.finished = true
	s.err = err
	s.once.Do(func() {
		if s.onDone != nil {
			s.onDone(err)
		}
	})
}
