package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/mcpagent/internal/resilience"
	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	llmmock "github.com/MrWong99/mcpagent/pkg/provider/llm/mock"
	"github.com/MrWong99/mcpagent/pkg/types"
)

func newTestGateway(t *testing.T, p llm.Provider, opts ...GatewayOption) *Gateway {
	t.Helper()
	m, _ := newTestMetrics(t)
	return NewGateway(p, append([]GatewayOption{WithGatewayMetrics(m)}, opts...)...)
}

func textChunks(parts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, llm.Chunk{Text: p})
	}
	return append(chunks, llm.Chunk{FinishReason: "stop"})
}

var oneUserMessage = []types.Message{{Role: types.RoleUser, Content: "hi"}}

func TestSend_Classification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		resp     *llm.CompletionResponse
		wantKind ReplyKind
		wantText string
	}{
		{"final", &llm.CompletionResponse{Content: "hello"}, ReplyFinal, "hello"},
		{"empty response", nil, ReplyFinal, ""},
		{
			"tool calls",
			&llm.CompletionResponse{ToolCalls: []types.ToolCall{{ID: "1", Name: "get_weather", Arguments: `{"city":"北京"}`}}},
			ReplyToolCalls, "",
		},
		{
			"tool calls with content",
			&llm.CompletionResponse{Content: "checking", ToolCalls: []types.ToolCall{{ID: "1", Name: "get_weather"}}},
			ReplyToolCalls, "checking",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newTestGateway(t, &llmmock.Provider{CompleteResponse: tt.resp})
			reply, err := g.Send(context.Background(), oneUserMessage, nil)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if reply.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", reply.Kind, tt.wantKind)
			}
			if reply.Content != tt.wantText {
				t.Errorf("Content = %q, want %q", reply.Content, tt.wantText)
			}
			if reply.Assistant.Role != types.RoleAssistant {
				t.Errorf("Assistant.Role = %q", reply.Assistant.Role)
			}
			if tt.wantKind == ReplyToolCalls && len(reply.Assistant.ToolCalls) != len(reply.Calls) {
				t.Errorf("Assistant message dropped tool calls")
			}
		})
	}
}

func TestSend_RequestShape(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	g := newTestGateway(t, p, WithSystemPrompt("be brief"), WithTemperature(0.2), WithMaxTokens(64))

	tools := []types.ToolDefinition{{Name: "get_weather"}}
	if _, err := g.Send(context.Background(), oneUserMessage, tools); err != nil {
		t.Fatal(err)
	}
	req := p.Calls()[0].Req
	if req.SystemPrompt != "be brief" || req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("request options = %+v", req)
	}
	if len(req.Tools) != 1 || len(req.Messages) != 1 {
		t.Errorf("request = %+v", req)
	}
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			t.Error("system prompt must not be sent as a history message")
		}
	}
}

func TestSend_ToolsWithheldWithoutToolCalling(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "ok"},
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 2048, SupportsStreaming: true},
	}
	g := newTestGateway(t, p)

	reply, err := g.Send(context.Background(), oneUserMessage, []types.ToolDefinition{{Name: "get_weather"}})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Kind != ReplyFinal {
		t.Errorf("kind = %v", reply.Kind)
	}
	if n := len(p.Calls()[0].Req.Tools); n != 0 {
		t.Errorf("offered %d tools to a model without tool calling", n)
	}
}

func TestSend_ErrorWrapsModelUnavailable(t *testing.T) {
	t.Parallel()
	cause := errors.New("dial tcp: connection refused")
	g := newTestGateway(t, &llmmock.Provider{CompleteErr: cause})
	_, err := g.Send(context.Background(), oneUserMessage, nil)
	if !errors.Is(err, ErrModelUnavailable) || !errors.Is(err, cause) {
		t.Errorf("err = %v, want ErrModelUnavailable wrapping the cause", err)
	}
}

func TestStreamCollectMatchesSend(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		StreamChunks:     textChunks("The ", "answer ", "", "is 4."),
		CompleteResponse: &llm.CompletionResponse{Content: "The answer is 4."},
	}
	g := newTestGateway(t, p)

	reply, err := g.Send(context.Background(), oneUserMessage, nil)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := g.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatal(err)
	}
	got, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got != reply.Content {
		t.Errorf("streamed %q, non-streamed %q", got, reply.Content)
	}
	if tools := p.StreamCalls[0].Req.Tools; tools != nil {
		t.Errorf("streaming request offered tools: %+v", tools)
	}
}

func TestStream_NextSkipsEmptyFragments(t *testing.T) {
	t.Parallel()
	chunks := []llm.Chunk{{Text: "a"}, {}, {Text: "b"}, {Text: "c", FinishReason: "stop"}}
	g := newTestGateway(t, &llmmock.Provider{StreamChunks: chunks})
	stream, err := g.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		got = append(got, frag)
	}
	if !equalStrings(got, []string{"a", "b", "c"}) {
		t.Errorf("fragments = %q", got)
	}
	if stream.Err() != nil {
		t.Errorf("Err = %v", stream.Err())
	}
	if _, ok := stream.Next(); ok {
		t.Error("Next after completion returned a fragment")
	}
}

func TestStream_SingleUse(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, &llmmock.Provider{StreamChunks: textChunks("x")})
	stream, err := g.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Collect(); !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("second Collect err = %v, want ErrStreamConsumed", err)
	}
}

func TestStream_BrokenMidway(t *testing.T) {
	t.Parallel()
	chunks := []llm.Chunk{{Text: "partial"}, {Text: "connection reset", FinishReason: llm.FinishReasonError}}
	g := newTestGateway(t, &llmmock.Provider{StreamChunks: chunks})
	stream, err := g.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Collect(); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestStream_StartFailure(t *testing.T) {
	t.Parallel()
	g := newTestGateway(t, &llmmock.Provider{StreamErr: errors.New("refused")})
	if _, err := g.SendStreaming(context.Background(), oneUserMessage); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestStream_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan llm.Chunk)
	close(ch)
	cancel()
	s := &Stream{ctx: ctx, ch: ch}
	if _, err := s.Collect(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStream_CloseDrains(t *testing.T) {
	t.Parallel()
	ch := make(chan llm.Chunk)
	s := &Stream{ctx: context.Background(), ch: ch}
	s.Close()

	done := make(chan struct{})
	go func() {
		ch <- llm.Chunk{Text: "late"}
		close(ch)
		close(done)
	}()
	<-done
	if _, err := s.Collect(); !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Collect after Close err = %v, want ErrStreamConsumed", err)
	}
}

// plainProvider hides the Unloader and Pinger methods of the mock.
type plainProvider struct{ llm.Provider }

func TestGateway_UnloadAndPing(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{}
	g := newTestGateway(t, p)
	if err := g.Unload(context.Background()); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if err := g.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if p.UnloadCallCount != 1 || p.PingCallCount != 1 {
		t.Errorf("unload=%d ping=%d, want 1 each", p.UnloadCallCount, p.PingCallCount)
	}

	failing := newTestGateway(t, &llmmock.Provider{UnloadErr: errors.New("x"), PingErr: errors.New("y")})
	if err := failing.Unload(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Unload err = %v", err)
	}
	if err := failing.Ping(context.Background()); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Ping err = %v", err)
	}

	plain := newTestGateway(t, plainProvider{p})
	if err := plain.Unload(context.Background()); err != nil {
		t.Errorf("Unload on a backend without unload support = %v, want nil", err)
	}
	if err := plain.Ping(context.Background()); err != nil {
		t.Errorf("Ping on a backend without ping support = %v, want nil", err)
	}
}

func TestReplyKindString(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	for _, k := range []ReplyKind{ReplyFinal, ReplyToolCalls, ReplyKind(7)} {
		buf.WriteString(k.String() + " ")
	}
	if got := buf.String(); got != "final tool_calls ReplyKind(7) " {
		t.Errorf("got %q", got)
	}
}

func TestGateway_BreakerFailsFast(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteErr: errors.New("connection refused")}
	b := resilience.New(resilience.Config{Name: "test", MaxFailures: 2, Cooldown: time.Hour})
	g := newTestGateway(t, p, WithBreaker(b))

	for range 2 {
		if _, err := g.Send(context.Background(), oneUserMessage, nil); !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("Send err = %v", err)
		}
	}
	_, err := g.Send(context.Background(), oneUserMessage, nil)
	if !errors.Is(err, ErrModelUnavailable) || !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("Send with open breaker = %v, want ErrModelUnavailable wrapping ErrOpen", err)
	}
	if _, err := g.SendStreaming(context.Background(), oneUserMessage); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("SendStreaming with open breaker = %v", err)
	}
	if len(p.CompleteCalls) != 2 {
		t.Errorf("provider called %d times, want 2", len(p.CompleteCalls))
	}
}

func TestGateway_BreakerIgnoresCallerAborts(t *testing.T) {
	t.Parallel()
	b := resilience.New(resilience.Config{MaxFailures: 1, Cooldown: time.Hour})

	cancelled := newTestGateway(t, &llmmock.Provider{CompleteErr: context.Canceled}, WithBreaker(b))
	if _, err := cancelled.Send(context.Background(), oneUserMessage, nil); err == nil {
		t.Fatal("Send: want error")
	}

	streaming := newTestGateway(t, &llmmock.Provider{StreamChunks: textChunks("a", "b")}, WithBreaker(b))
	s, err := streaming.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	s.Close()

	if b.State() != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", b.State())
	}
}

func TestGateway_CancelledProbeKeepsBreakerHalfOpen(t *testing.T) {
	t.Parallel()
	b := resilience.New(resilience.Config{MaxFailures: 1, Cooldown: time.Nanosecond})

	failing := newTestGateway(t, &llmmock.Provider{CompleteErr: errors.New("connection refused")}, WithBreaker(b))
	if _, err := failing.Send(context.Background(), oneUserMessage, nil); err == nil {
		t.Fatal("Send: want error")
	}
	time.Sleep(time.Millisecond)

	cancelled := newTestGateway(t, &llmmock.Provider{CompleteErr: context.Canceled}, WithBreaker(b))
	if _, err := cancelled.Send(context.Background(), oneUserMessage, nil); errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("probe rejected: %v", err)
	}
	if b.State() == resilience.StateClosed {
		t.Error("a cancelled probe closed the breaker")
	}
}

func TestGateway_BreakerCountsBrokenStream(t *testing.T) {
	t.Parallel()
	b := resilience.New(resilience.Config{MaxFailures: 1, Cooldown: time.Hour})
	chunks := []llm.Chunk{{Text: "par"}, {Text: "model crashed", FinishReason: llm.FinishReasonError}}
	g := newTestGateway(t, &llmmock.Provider{StreamChunks: chunks}, WithBreaker(b))

	s, err := g.SendStreaming(context.Background(), oneUserMessage)
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	if _, err := s.Collect(); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("Collect err = %v", err)
	}
	if b.State() != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", b.State())
	}
}
