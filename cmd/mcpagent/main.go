// Command mcpagent is the HTTP front end of the agent. It answers
// POST /agent/chat with one tool-augmented round trip and streams sessions
// over /agent/ws.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mcpagent/internal/app"
	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/internal/observe"
	"github.com/MrWong99/mcpagent/internal/server"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file; watched for changes (built-in defaults when empty)")
	flag.Parse()

	var (
		cfg      *config.Config
		reloader *config.Reloader
		level    slog.LevelVar
		a        *app.App
		err      error
	)
	if *configPath != "" {
		// The reloader owns the file from here on; a reload goes through
		// a.Apply, which is assigned before the reloader starts running.
		reloader, cfg, err = config.NewReloader(*configPath, func(newCfg *config.Config) error {
			d, err := a.Apply(newCfg)
			if err != nil {
				return err
			}
			if d.LogLevelChanged {
				level.Set(d.NewLogLevel.SlogLevel())
			}
			slog.Info("config applied",
				"provider_changed", d.ProviderChanged,
				"agent_changed", d.AgentChanged,
				"mcp_changed", d.MCPChanged,
			)
			return nil
		})
	} else {
		cfg = config.Default()
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mcpagent: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mcpagent: %v\n", err)
		}
		return 1
	}

	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("mcpagent starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownOTel, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	a, err = app.New(cfg, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(a, server.WithCORSOrigins(cfg.Server.CORSOrigins))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.ListenAddr, cfg.Server.TLS)
	})
	if reloader != nil {
		g.Go(func() error { return reloader.Run(gctx) })
	}
	g.Go(func() error {
		// Startup readiness is informational; /readyz reports it live.
		checkCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
		defer cancel()
		for _, c := range a.Checkers() {
			if err := c.Check(checkCtx); err != nil {
				slog.Warn("dependency not ready", "check", c.Name, "err", err)
			}
		}
		return nil
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       mcpagent: startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	model := cfg.Providers.LLM.Model
	if model == "" {
		model = "(default)"
	}
	printRow("LLM", truncate(cfg.Providers.LLM.Name+" / "+model))
	printRow("Tool hosts", fmt.Sprint(len(cfg.MCP.Servers)))
	printRow("Builtin tools", fmt.Sprint(len(cfg.Agent.BuiltinTools)))
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Request limit", cfg.Agent.RequestTimeout.String())
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > 19 {
		return string(r[:18]) + "…"
	}
	return s
}
