package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// fakeServer answers under /v1 like a self-hosted compatible server.
type fakeServer struct {
	t      *testing.T
	status int
	body   string // chat completion JSON
	events []string

	mu       sync.Mutex
	requests []map[string]any
	hits     int
}

func (f *fakeServer) start() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decoding request: %v", err)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.hits++
		f.mu.Unlock()

		if f.status != 0 {
			http.Error(w, `{"error":{"message":"model overloaded"}}`, f.status)
			return
		}
		if req["stream"] == true {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, e := range f.events {
				fmt.Fprintf(w, "data: %s\n\n", e)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.body)
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"qwen3:8b","object":"model","created":0,"owned_by":"library"}]}`)
	})
	srv := httptest.NewServer(mux)
	f.t.Cleanup(srv.Close)
	return srv
}

func newFake(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	f.t = t
	srv := f.start()
	p, err := New("", "qwen3:8b", WithBaseURL(srv.URL+"/v1"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func chunkJSON(delta string, finish string) string {
	fr := "null"
	if finish != "" {
		fr = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"qwen3:8b","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`, delta, fr)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		key     string
		model   string
		opts    []Option
		wantErr bool
	}{
		{"hosted with key", "sk-test", "gpt-4o", nil, false},
		{"hosted without key", "", "gpt-4o", nil, true},
		{"compatible without key", "", "qwen3:8b", []Option{WithBaseURL("http://localhost:11434/v1")}, false},
		{"no model", "sk-test", "", nil, true},
		{"all options", "sk-test", "gpt-4o", []Option{WithOrganization("org-1"), WithTimeout(1), WithContextWindow(8192)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.key, tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	t.Parallel()
	f := &fakeServer{body: `{"id":"c1","object":"chat.completion","created":0,"model":"qwen3:8b",
		"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
		"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"北京\"}"}}]}}],
		"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`}
	p := newFake(t, f)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "北京天气怎么样?"}},
		Tools:        []types.ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
		MaxTokens:    64,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_weather" || resp.ToolCalls[0].Arguments != `{"city":"北京"}` {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	req := f.requests[0]
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v", first["role"])
	}
	if tools, _ := req["tools"].([]any); len(tools) != 1 {
		t.Errorf("sent %d tools", len(tools))
	}
	if req["max_completion_tokens"] != float64(64) {
		t.Errorf("max_completion_tokens = %v", req["max_completion_tokens"])
	}
	if _, ok := req["temperature"]; ok {
		t.Error("zero temperature was sent")
	}
}

func TestComplete_ServerErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	f := &fakeServer{status: http.StatusServiceUnavailable}
	p := newFake(t, f)

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("want error")
	}
	if f.hits != 1 {
		t.Errorf("server hit %d times, want 1", f.hits)
	}
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	f := &fakeServer{events: []string{
		chunkJSON(`{"role":"assistant","content":"Hel"}`, ""),
		chunkJSON(`{"content":"lo"}`, ""),
		chunkJSON(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"ci"}}]}`, ""),
		chunkJSON(`{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"上海\"}"}}]}`, ""),
		chunkJSON(`{}`, "tool_calls"),
	}}
	p := newFake(t, f)

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text strings.Builder
	var last llm.Chunk
	for c := range ch {
		text.WriteString(c.Text)
		last = c
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if last.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", last.FinishReason)
	}
	if len(last.ToolCalls) != 1 || last.ToolCalls[0].ID != "call_1" || last.ToolCalls[0].Arguments != `{"city":"上海"}` {
		t.Errorf("ToolCalls = %+v", last.ToolCalls)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	p := newFake(t, &fakeServer{})
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	q, err := New("", "qwen3:8b", WithBaseURL(down.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Ping(context.Background()); err == nil {
		t.Error("Ping on a closed server: want error")
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		msg   types.Message
		check func(t *testing.T, m map[string]any)
	}{
		{"assistant with tool calls", types.Message{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: "{}"}}},
			func(t *testing.T, m map[string]any) {
				if calls, _ := m["tool_calls"].([]any); len(calls) != 1 {
					t.Errorf("tool_calls = %v", m["tool_calls"])
				}
			}},
		{"tool result", types.Message{Role: types.RoleTool, Content: "sunny", ToolCallID: "call_1"},
			func(t *testing.T, m map[string]any) {
				if m["tool_call_id"] != "call_1" || m["role"] != "tool" {
					t.Errorf("got %v", m)
				}
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			param, err := toMessage(tt.msg)
			if err != nil {
				t.Fatal(err)
			}
			data, err := json.Marshal(param)
			if err != nil {
				t.Fatal(err)
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatal(err)
			}
			tt.check(t, m)
		})
	}

	if _, err := toMessage(types.Message{Role: "narrator"}); err == nil {
		t.Error("unknown role: want error")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "gpt-4o", WithContextWindow(128_000))
	if err != nil {
		t.Fatal(err)
	}
	caps := p.Capabilities()
	if caps.ContextWindow != 128_000 || !caps.SupportsToolCalling || !caps.SupportsStreaming {
		t.Errorf("caps = %+v", caps)
	}
}
