package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/mcpagent/internal/agent"
	"github.com/MrWong99/mcpagent/internal/observe"
)

// ErrSessionNotFound is returned by [SessionManager.Stop] for an unknown ID.
var ErrSessionNotFound = errors.New("app: session not found")

// SessionInfo holds metadata about an open streaming session.
type SessionInfo struct {
	// SessionID is the session's unique identifier.
	SessionID string `json:"session_id"`

	// Remote is the peer address the session was opened from.
	Remote string `json:"remote"`

	// StartedAt is when the session was opened.
	StartedAt time.Time `json:"started_at"`

	// Turns is the number of completed turns.
	Turns int `json:"turns"`
}

type managed struct {
	session *agent.Session
	info    SessionInfo
	cancel  context.CancelFunc
}

// SessionManager tracks the streaming sessions opened over the websocket
// endpoint. Each session owns its history; the manager only keeps them
// listable and lets shutdown cancel them. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*managed
}

// NewSessionManager creates an empty SessionManager that reports the number
// of open sessions to m.
func NewSessionManager(m *observe.Metrics) *SessionManager {
	return &SessionManager{
		metrics:  m,
		sessions: make(map[string]*managed),
	}
}

// Start opens a session answered through gateway. The returned context is
// cancelled when the session is stopped; run the session's turns under it.
func (sm *SessionManager) Start(ctx context.Context, gateway *agent.Gateway, remote string) (*agent.Session, context.Context) {
	s := agent.NewSession(gateway)
	ctx, cancel := context.WithCancel(ctx)

	sm.mu.Lock()
	sm.sessions[s.ID()] = &managed{
		session: s,
		info: SessionInfo{
			SessionID: s.ID(),
			Remote:    remote,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	sm.mu.Unlock()

	sm.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx).Info("session started", "session_id", s.ID(), "remote", remote)
	return s, ctx
}

// TurnDone counts a completed turn for id.
func (sm *SessionManager) TurnDone(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if m, ok := sm.sessions[id]; ok {
		m.info.Turns++
	}
}

// Stop cancels the session and forgets it.
func (sm *SessionManager) Stop(ctx context.Context, id string) error {
	sm.mu.Lock()
	m, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.cancel()
	sm.metrics.ActiveSessions.Add(ctx, -1)
	observe.Logger(ctx).Info("session stopped", "session_id", id, "turns", m.info.Turns)
	return nil
}

// StopAll stops every open session. It gives up once ctx is done and
// returns the context error.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	for _, info := range sm.List() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A session may close on its own between List and Stop.
		if err := sm.Stop(ctx, info.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// List returns the open sessions, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, m := range sm.sessions {
		out = append(out, m.info)
	}
	sm.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the number of open sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
