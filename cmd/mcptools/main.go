// Command mcptools is the MCP tool host. It serves get_weather and
// list_files_in_directory over SSE (default, at /sse), streamable HTTP (at
// /mcp) or stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/internal/health"
	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/fileio"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/weather"
	"github.com/MrWong99/mcpagent/internal/observe"
	"github.com/MrWong99/mcpagent/internal/toolserver"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	transport := flag.String("transport", "", "sse, streamable-http or stdio; overrides toolserver.transport")
	addr := flag.String("addr", "", "listen address; overrides toolserver.listen_addr")
	root := flag.String("root", "", "confine list_files_in_directory to this directory; overrides toolserver.root")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcptools: %v\n", err)
		return 1
	}
	if *transport != "" {
		cfg.ToolServer.Transport = mcp.Transport(*transport)
	}
	if *addr != "" {
		cfg.ToolServer.ListenAddr = *addr
	}
	if *root != "" {
		cfg.ToolServer.Root = *root
	}
	if !cfg.ToolServer.Transport.IsValid() {
		fmt.Fprintf(os.Stderr, "mcptools: invalid transport %q\n", cfg.ToolServer.Transport)
		return 1
	}

	// stdout carries the protocol on stdio, so logs always go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.SlogLevel()})))

	srv, err := newToolServer(cfg.ToolServer)
	if err != nil {
		slog.Error("failed to build tool server", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("mcptools starting", "transport", cfg.ToolServer.Transport, "tools", srv.Tools(), "root", cfg.ToolServer.Root)

	if cfg.ToolServer.Transport == mcp.TransportStdio {
		if err := srv.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stdio server stopped", "err", err)
			return 1
		}
		return 0
	}

	handler, err := routes(srv, cfg.ToolServer.Transport)
	if err != nil {
		slog.Error("failed to build routes", "err", err)
		return 1
	}
	if err := serve(ctx, cfg.ToolServer.ListenAddr, handler); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newToolServer registers the weather and file listing tools.
func newToolServer(cfg config.ToolServerConfig) (*toolserver.Server, error) {
	opts := []toolserver.Option{toolserver.WithVersion(version)}
	if cfg.Name != "" {
		opts = append(opts, toolserver.WithName(cfg.Name))
	}
	srv := toolserver.New(opts...)
	if err := srv.Add(weather.Tools()...); err != nil {
		return nil, err
	}
	if err := srv.Add(fileio.NewTools(fileio.WithRoot(cfg.Root))...); err != nil {
		return nil, err
	}
	return srv, nil
}

// routes mounts the MCP endpoint for transport next to /healthz.
func routes(srv *toolserver.Server, transport mcp.Transport) (http.Handler, error) {
	h, path, err := srv.Handler(transport)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(path, h)
	health.New(nil).Register(mux)
	return observe.Middleware(observe.DefaultMetrics())(mux), nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("tool host listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutdown signal received, stopping…")
	// SSE streams stay open until the client leaves; Close cuts them off.
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return errors.Join(err, hs.Close())
	}
	return nil
}
