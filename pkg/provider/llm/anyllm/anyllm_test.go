package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	"github.com/MrWong99/mcpagent/pkg/types"
)

func TestToParams(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		req       llm.CompletionRequest
		wantMsgs  int
		wantTemp  bool
		wantMax   bool
		wantTools int
	}{
		{
			name:     "bare",
			req:      llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}},
			wantMsgs: 1,
		},
		{
			name: "everything set",
			req: llm.CompletionRequest{
				SystemPrompt: "用中文回答",
				Temperature:  0.5,
				MaxTokens:    256,
				Messages:     []types.Message{{Role: types.RoleUser, Content: "今天天气如何?"}},
				Tools:        []types.ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
			},
			wantMsgs: 2, wantTemp: true, wantMax: true, wantTools: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := toParams("qwen3:8b", tt.req)
			if p.Model != "qwen3:8b" || len(p.Messages) != tt.wantMsgs {
				t.Fatalf("model %q, %d messages", p.Model, len(p.Messages))
			}
			if tt.req.SystemPrompt != "" && p.Messages[0].Role != anyllmlib.RoleSystem {
				t.Errorf("system prompt not first: %+v", p.Messages[0])
			}
			if (p.Temperature != nil) != tt.wantTemp || (p.MaxTokens != nil) != tt.wantMax {
				t.Errorf("temperature set=%v, max tokens set=%v", p.Temperature != nil, p.MaxTokens != nil)
			}
			if tt.wantTemp && *p.Temperature != tt.req.Temperature {
				t.Errorf("temperature = %v", *p.Temperature)
			}
			if len(p.Tools) != tt.wantTools {
				t.Errorf("%d tools, want %d", len(p.Tools), tt.wantTools)
			}
		})
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()
	call := toMessage(types.Message{
		Role:      types.RoleAssistant,
		ToolCalls: []types.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"city":"北京"}`}},
	})
	if len(call.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls", len(call.ToolCalls))
	}
	if tc := call.ToolCalls[0]; tc.ID != "call_1" || tc.Type != "function" || tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"city":"北京"}` {
		t.Errorf("tool call = %+v", tc)
	}

	result := toMessage(types.Message{Role: types.RoleTool, Content: "晴朗, 25°C", ToolCallID: "call_1", ToolName: "get_weather"})
	if result.ToolCallID != "call_1" || result.Name != "get_weather" || result.ContentString() != "晴朗, 25°C" {
		t.Errorf("tool result = %+v", result)
	}

	user := toMessage(types.Message{Role: types.RoleUser, Content: "hello", ToolName: "ignored"})
	if user.Name != "" || user.ContentString() != "hello" {
		t.Errorf("user message = %+v", user)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("anthropic", ""); err == nil {
		t.Error("empty model: want error")
	}
	if _, err := New("carrier-pigeon", "m"); err == nil {
		t.Error("unknown backend: want error")
	}
	p, err := New("LlamaCpp", "qwen3-8b", anyllmlib.WithBaseURL("http://127.0.0.1:8080/v1"))
	if err != nil {
		t.Fatalf("llamacpp: %v", err)
	}
	if caps := p.Capabilities(); !caps.SupportsToolCalling || !caps.SupportsStreaming {
		t.Errorf("caps = %+v", caps)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	if !slices.IsSorted(got) || len(got) != 9 {
		t.Errorf("Backends() = %v", got)
	}
	for _, name := range []string{"anthropic", "gemini", "llamafile"} {
		if !slices.Contains(got, name) {
			t.Errorf("missing %s", name)
		}
	}
}
