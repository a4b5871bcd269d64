package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/mcpagent/pkg/types"
)

// Session is one interactive streaming conversation. It owns its history;
// turns are serialised.
type Session struct {
	id      string
	gateway *Gateway

	mu      sync.Mutex
	history *History
}

// NewSession starts an empty conversation answered through gateway.
func NewSession(gateway *Gateway) *Session {
	return &Session{
		id:      uuid.NewString(),
		gateway: gateway,
		history: NewHistory(),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Turn streams the model's answer to prompt into w, fragment by fragment,
// and returns the full answer.
//
// The prompt and the answer are committed to the history together, and only
// once the stream has completed. When the model fails, the stream breaks or
// w returns an error, the history is left untouched.
func (s *Session) Turn(ctx context.Context, prompt string, w io.Writer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := types.Message{Role: types.RoleUser, Content: prompt}
	msgs := append(s.history.Messages(), user)

	stream, err := s.gateway.SendStreaming(ctx, msgs)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		b.WriteString(frag)
		if _, err := io.WriteString(w, frag); err != nil {
			stream.Close()
			return "", fmt.Errorf("agent: write reply: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}

	reply := b.String()
	s.history.Append(user, types.Message{Role: types.RoleAssistant, Content: reply})
	return reply, nil
}

// History returns a snapshot of the committed conversation.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Messages()
}

// Unload asks the serving process to release the model. Only the REPL does
// this, on exit.
func (s *Session) Unload(ctx context.Context) error {
	return s.gateway.Unload(ctx)
}
