package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/MrWong99/mcpagent/internal/app"
	"github.com/MrWong99/mcpagent/internal/observe"
)

// Frames sent to the client. Each turn is zero or more deltaFrames followed
// by exactly one doneFrame or errorFrame.
type deltaFrame struct {
	Delta string `json:"delta"`
}

type doneFrame struct {
	Done     bool   `json:"done"`
	Response string `json:"response"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// handleWS runs one streaming session per connection. The client sends
// {"prompt": "..."} text frames; the history lives as long as the
// connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sess, ctx := s.app.Sessions().Start(r.Context(), s.app.Gateway(), r.RemoteAddr)
	defer func() {
		// StopAll may have removed the session already.
		if err := s.app.Sessions().Stop(r.Context(), sess.ID()); err != nil && !errors.Is(err, app.ErrSessionNotFound) {
			observe.Logger(r.Context()).Warn("stopping session", "session_id", sess.ID(), "err", err)
		}
	}()
	log := observe.Logger(ctx).With("session_id", sess.ID())

	// Stopping the session ends the connection with a proper close frame.
	stop := context.AfterFunc(ctx, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			if st := websocket.CloseStatus(err); ctx.Err() == nil && st != websocket.StatusNormalClosure && st != websocket.StatusGoingAway {
				log.Debug("websocket read ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			if !send(ctx, conn, errorFrame{Error: "expected a text frame"}) {
				return
			}
			continue
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Prompt == nil {
			if !send(ctx, conn, errorFrame{Error: "expected {\"prompt\": \"...\"}"}) {
				return
			}
			continue
		}

		turnCtx, cancel := ctx, context.CancelFunc(func() {})
		if t := s.app.Config().Agent.RequestTimeout; t > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, t)
		}
		reply, err := sess.Turn(turnCtx, *req.Prompt, &deltaWriter{ctx: turnCtx, conn: conn})
		cancel()
		if err != nil {
			log.Error("turn failed", "err", err)
			if !send(ctx, conn, errorFrame{Error: err.Error()}) {
				return
			}
			continue
		}
		s.app.Sessions().TurnDone(sess.ID())
		if !send(ctx, conn, doneFrame{Done: true, Response: reply}) {
			return
		}
	}
}

// acceptOptions allows every origin unless CORS origins are configured, in
// which case only their hosts may open a websocket.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if len(s.corsOrigins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(s.corsOrigins))
	for _, o := range s.corsOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// send writes v as a text frame and reports whether the connection is still
// usable.
func send(ctx context.Context, conn *websocket.Conn, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return conn.Write(ctx, websocket.MessageText, data) == nil
}

// deltaWriter forwards each fragment written by a session turn as a
// deltaFrame.
type deltaWriter struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (d *deltaWriter) Write(p []byte) (int, error) {
	data, err := json.Marshal(deltaFrame{Delta: string(p)})
	if err != nil {
		return 0, err
	}
	if err := d.conn.Write(d.ctx, websocket.MessageText, data); err != nil {
		return 0, err
	}
	return len(p), nil
}
