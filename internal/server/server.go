// Package server exposes the agent over HTTP.
//
// Routes:
//
//	POST /agent/chat      one stateless round trip: {"prompt"} -> {"response"}
//	GET  /agent/tools     tool declarations and call statistics
//	GET  /agent/sessions  open streaming sessions
//	GET  /agent/ws        websocket streaming chat, one session per connection
//	GET  /healthz         liveness
//	GET  /readyz          model and tool hosts reachable
//	GET  /metrics         Prometheus exposition
//
// Failures are answered with {"detail": "..."}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/mcpagent/internal/app"
	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/internal/health"
	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/observe"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// shutdownTimeout bounds the graceful shutdown in [Server.Run].
const shutdownTimeout = 15 * time.Second

// Server routes HTTP requests to an [app.App].
type Server struct {
	app            *app.App
	metrics        *observe.Metrics
	metricsHandler http.Handler
	corsOrigins    []string
	handler        http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records request metrics to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithCORSOrigins restricts cross-origin requests to origins. Without it
// every origin is allowed.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// New builds the routes for a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/chat", s.handleChat)
	mux.HandleFunc("GET /agent/tools", s.handleTools)
	mux.HandleFunc("GET /agent/sessions", s.handleSessions)
	mux.HandleFunc("GET /agent/ws", s.handleWS)
	mux.Handle("GET /metrics", s.metricsHandler)
	health.New(a.Checkers()).Register(mux)

	s.handler = observe.Middleware(s.metrics)(cors(s.corsOrigins)(mux))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is done, then shuts down gracefully and
// closes every open session. A non-nil tls serves HTTPS.
func (s *Server) Run(ctx context.Context, addr string, tls *config.TLSConfig) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	slog.Info("agent server listening", "addr", addr, "tls", tls != nil)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := errors.Join(
		s.app.Shutdown(shutdownCtx),
		srv.Shutdown(shutdownCtx),
	)
	if lerr := <-errCh; lerr != nil {
		err = errors.Join(err, lerr)
	}
	return err
}

type chatRequest struct {
	Prompt *string `json:"prompt"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body: " + err.Error()})
		return
	}
	if req.Prompt == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "prompt is required"})
		return
	}

	reply, err := s.app.Chat(r.Context(), *req.Prompt)
	if err != nil {
		observe.Logger(r.Context()).Error("chat failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

type toolView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type toolsResponse struct {
	Tools []toolView      `json:"tools"`
	Stats []mcp.ToolStats `json:"stats"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	host, err := s.app.OpenHost(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	decls := host.ListTools()
	if err := host.Close(); err != nil {
		observe.Logger(r.Context()).Warn("closing tool host", "err", err)
	}

	resp := toolsResponse{Tools: make([]toolView, 0, len(decls)), Stats: s.app.ToolStats()}
	for _, d := range decls {
		resp.Tools = append(resp.Tools, toolView{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Sessions().List())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "err", err)
	}
}

// cors answers preflight requests and sets the CORS headers. With no origins
// configured every origin is allowed, credentials included.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
					if hdrs := r.Header.Get("Access-Control-Request-Headers"); hdrs != "" {
						h.Set("Access-Control-Allow-Headers", hdrs)
					}
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
