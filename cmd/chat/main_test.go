package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/mcpagent/internal/agent"
	"github.com/MrWong99/mcpagent/pkg/provider/llm"
	llmmock "github.com/MrWong99/mcpagent/pkg/provider/llm/mock"
)

func TestREPL(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "我是"}, {Text: "助手"}, {FinishReason: "stop"}}}
	sess := agent.NewSession(agent.NewGateway(p))

	var out, errOut strings.Builder
	in := strings.NewReader("你是谁?\nagain\nOK, /BYE now\nnever sent\n")
	if err := repl(context.Background(), sess, in, &out, &errOut); err != nil {
		t.Fatalf("repl: %v", err)
	}

	want := "Q: A: 我是助手\nQ: A: 我是助手\nQ: "
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if n := len(sess.History()); n != 4 {
		t.Errorf("history has %d messages, want 4", n)
	}
	if p.UnloadCallCount != 1 {
		t.Errorf("UnloadCallCount = %d, want 1", p.UnloadCallCount)
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected errors: %q", errOut.String())
	}
}

func TestREPL_FailedTurnContinues(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamErr: errors.New("connection refused")}
	sess := agent.NewSession(agent.NewGateway(p))

	var out, errOut strings.Builder
	if err := repl(context.Background(), sess, strings.NewReader("hi\n"), &out, &errOut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(errOut.String(), "model unavailable") {
		t.Errorf("errors = %q", errOut.String())
	}
	if len(sess.History()) != 0 {
		t.Error("failed turn left messages in the history")
	}
	if p.UnloadCallCount != 0 {
		t.Error("model unloaded on EOF")
	}
}
