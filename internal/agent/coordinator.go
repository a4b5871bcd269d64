// Package agent drives the conversation between a user, the model and the
// tool registry.
//
// A [Gateway] sends a history to the model and classifies the reply as a
// final answer or a tool-call request. A [Coordinator] runs one tool-augmented
// round trip on top of it, and a [Session] owns the history of an interactive
// streaming conversation.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/observe"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// DefaultToolTimeout bounds a single tool call when no other timeout is set.
const DefaultToolTimeout = 30 * time.Second

// CoordinatorOption configures a [Coordinator].
type CoordinatorOption func(*Coordinator)

// WithToolTimeout bounds each tool call. Zero or negative disables the bound.
func WithToolTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.toolTimeout = d }
}

// WithMetrics records turn and tool metrics to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator runs round trips: user prompt, model, at most one batch of
// tool calls, model again. It holds no conversation state of its own.
type Coordinator struct {
	gateway     *Gateway
	tools       mcp.Host
	toolTimeout time.Duration
	metrics     *observe.Metrics
}

// NewCoordinator returns a coordinator that answers through gateway and
// executes tool calls on tools.
func NewCoordinator(gateway *Gateway, tools mcp.Host, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		gateway:     gateway,
		tools:       tools,
		toolTimeout: DefaultToolTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Chat appends prompt to h, runs one round trip and returns the content to
// show the user.
//
// If the model asks for tools, its raw reply and one tool message per call
// are appended, then the model is asked once more without tools. Whatever
// that second reply is, only its content is used: tool calls requested on
// the second pass are dropped and logged.
//
// Nothing is retried. On failure everything appended before the failure
// stays in h.
func (c *Coordinator) Chat(ctx context.Context, h *History, prompt string) (_ string, err error) {
	ctx, span := observe.StartSpan(ctx, "agent.chat")
	start := time.Now()
	defer func() {
		c.metrics.RecordTurn(ctx, time.Since(start).Seconds(), err)
		observe.EndSpan(span, err)
	}()
	log := observe.Logger(ctx)

	h.Append(types.Message{Role: types.RoleUser, Content: prompt})

	decls := c.tools.ListTools()
	log.Debug("querying model", "history", h.Len(), "tools", len(decls))
	reply, err := c.gateway.Send(ctx, h.Messages(), decls)
	if err != nil {
		return "", err
	}

	if reply.Kind == ReplyFinal {
		h.Append(types.Message{Role: types.RoleAssistant, Content: reply.Content})
		return reply.Content, nil
	}

	h.Append(reply.Assistant)
	span.SetAttributes(attribute.Int("agent.tool_calls", len(reply.Calls)))

	for _, call := range reply.Calls {
		res, err := c.callTool(ctx, call)
		if err != nil {
			return "", err
		}
		h.Append(types.Message{
			Role:       types.RoleTool,
			Content:    res.Content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}

	log.Debug("re-querying model with tool results", "history", h.Len())
	final, err := c.gateway.Send(ctx, h.Messages(), nil)
	if err != nil {
		return "", err
	}
	if final.Kind == ReplyToolCalls {
		names := make([]string, len(final.Calls))
		for i, fc := range final.Calls {
			names[i] = fc.Name
		}
		log.Warn("dropping tool calls requested after tool results", "tools", names)
		c.metrics.DroppedToolCalls.Add(ctx, int64(len(final.Calls)))
	}

	h.Append(types.Message{Role: types.RoleAssistant, Content: final.Content})
	return final.Content, nil
}

func (c *Coordinator) callTool(ctx context.Context, call types.ToolCall) (*mcp.ToolResult, error) {
	ctx, span := observe.StartSpan(ctx, "agent.tool_call",
		trace.WithAttributes(attribute.String("tool", call.Name)))

	callCtx := ctx
	if c.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.tools.CallTool(callCtx, call.Name, call.Arguments)
	elapsed := time.Since(start)
	c.metrics.RecordToolCall(ctx, call.Name, elapsed.Seconds(), err)

	if err != nil {
		err = fmt.Errorf("agent: tool %q: %w", call.Name, err)
		observe.Logger(ctx).Error("tool call failed", "tool", call.Name, "err", err)
	} else {
		observe.Logger(ctx).Info("tool call completed", "tool", call.Name, "duration", elapsed)
	}
	observe.EndSpan(span, err)
	return res, err
}
