// Package app turns a [config.Config] into the running pieces of the agent:
// the model gateway, the tool hosts and the coordinator.
//
// New builds everything from the config. For tests, inject doubles through
// functional options ([WithProvider], [WithHostFactory]). Apply swaps in a
// reloaded config without interrupting conversations already in progress.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/mcpagent/internal/agent"
	"github.com/MrWong99/mcpagent/internal/config"
	"github.com/MrWong99/mcpagent/internal/health"
	"github.com/MrWong99/mcpagent/internal/mcp"
	"github.com/MrWong99/mcpagent/internal/mcp/mcphost"
	"github.com/MrWong99/mcpagent/internal/mcp/tools"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/fileio"
	"github.com/MrWong99/mcpagent/internal/mcp/tools/weather"
	"github.com/MrWong99/mcpagent/internal/observe"
	"github.com/MrWong99/mcpagent/internal/resilience"
	"github.com/MrWong99/mcpagent/pkg/provider/llm"
)

// statsWindow is the number of recent calls per tool kept for statistics.
const statsWindow = 100

// HostFactory opens a tool host connected to every tool source in cfg. The
// caller closes it.
type HostFactory func(ctx context.Context, cfg *config.Config) (mcp.Host, error)

// App owns the model gateway and knows how to reach the tool hosts.
// All methods are safe for concurrent use.
type App struct {
	registry    *config.Registry
	metrics     *observe.Metrics
	recorder    *mcphost.Recorder
	provider    llm.Provider
	openHost    HostFactory
	version     string
	sessions    *SessionManager
	stopOnce    sync.Once
	shutdownErr error

	mu      sync.RWMutex
	cfg     *config.Config
	gateway *agent.Gateway
}

// Option is a functional option for New.
type Option func(*App)

// WithRegistry resolves providers.llm through reg instead of a registry
// populated by [RegisterProviders].
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithProvider uses p as the model backend instead of creating one from
// providers.llm. Reloads keep using p.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithHostFactory replaces the default factory, which connects an
// [mcphost.Host] to the configured servers and builtin tools.
func WithHostFactory(f HostFactory) Option {
	return func(a *App) { a.openHost = f }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the client version announced to tool hosts.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New builds an App from cfg. Only the model backend is created here; tool
// hosts are connected on demand.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		recorder: mcphost.NewRecorder(statsWindow),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterProviders(a.registry)
	}
	if a.openHost == nil {
		a.openHost = a.connectHost
	}

	gw, err := a.buildGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.gateway = gw
	a.sessions = NewSessionManager(a.metrics)
	return a, nil
}

func (a *App) buildGateway(cfg *config.Config) (*agent.Gateway, error) {
	p := a.provider
	if p == nil {
		var err error
		p, err = a.registry.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, err
		}
	}
	opts := []agent.GatewayOption{
		agent.WithSystemPrompt(cfg.Agent.SystemPrompt),
		agent.WithTemperature(cfg.Agent.Temperature),
		agent.WithMaxTokens(cfg.Agent.MaxTokens),
		agent.WithProviderName(cfg.Providers.LLM.Name),
		agent.WithGatewayMetrics(a.metrics),
	}
	if cb := cfg.Agent.CircuitBreaker; cb.MaxFailures > 0 {
		opts = append(opts, agent.WithBreaker(resilience.New(resilience.Config{
			Name:        cfg.Providers.LLM.Name,
			MaxFailures: cb.MaxFailures,
			Cooldown:    cb.Cooldown,
		})))
	}
	return agent.NewGateway(p, opts...), nil
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Gateway returns the model gateway currently in effect.
func (a *App) Gateway() *agent.Gateway {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gateway
}

// Sessions returns the registry of open streaming sessions.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Apply switches to newCfg. The gateway is rebuilt when the provider or the
// agent settings changed; if that fails the old config stays in effect.
// Sessions already open keep the gateway they started with.
func (a *App) Apply(newCfg *config.Config) (config.ConfigDiff, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := config.Diff(a.cfg, newCfg)
	if d.ProviderChanged || d.AgentChanged {
		gw, err := a.buildGateway(newCfg)
		if err != nil {
			return d, fmt.Errorf("app: apply config: %w", err)
		}
		a.gateway = gw
	}
	for _, c := range d.MCPChanges {
		slog.Info("tool host config changed", "name", c.Name, "added", c.Added, "removed", c.Removed, "changed", c.Changed)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("some settings only take effect after a restart", "settings", d.RestartRequired)
	}
	a.cfg = newCfg
	return d, nil
}

// OpenHost connects a fresh tool host for one conversation. The caller must
// close it.
func (a *App) OpenHost(ctx context.Context) (mcp.Host, error) {
	return a.openHost(ctx, a.Config())
}

// Coordinator returns a coordinator bound to the current gateway and host.
func (a *App) Coordinator(host mcp.Host) *agent.Coordinator {
	cfg := a.Config()
	return agent.NewCoordinator(a.Gateway(), host,
		agent.WithToolTimeout(cfg.Agent.ToolTimeout),
		agent.WithMetrics(a.metrics),
	)
}

// Chat runs one stateless round trip: fresh history, fresh tool host,
// bounded by agent.request_timeout.
func (a *App) Chat(ctx context.Context, prompt string) (string, error) {
	if t := a.Config().Agent.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	host, err := a.OpenHost(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := host.Close(); cerr != nil {
			observe.Logger(ctx).Warn("closing tool host", "err", cerr)
		}
	}()

	return a.Coordinator(host).Chat(ctx, agent.NewHistory(), prompt)
}

// ToolStats returns call statistics accumulated across every host opened by
// the default factory.
func (a *App) ToolStats() []mcp.ToolStats {
	return a.recorder.Snapshot()
}

// Checkers returns readiness checks for the model backend and the tool
// hosts.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{Name: "model", Check: func(ctx context.Context) error {
			return a.Gateway().Ping(ctx)
		}},
		{Name: "tools", Check: func(ctx context.Context) error {
			host, err := a.OpenHost(ctx)
			if err != nil {
				return err
			}
			return host.Close()
		}},
	}
}

// Shutdown closes every open session. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Count())
		a.shutdownErr = a.sessions.StopAll(ctx)
	})
	return a.shutdownErr
}

// connectHost is the default [HostFactory].
func (a *App) connectHost(ctx context.Context, cfg *config.Config) (mcp.Host, error) {
	opts := []mcphost.Option{mcphost.WithRecorder(a.recorder)}
	if a.version != "" {
		opts = append(opts, mcphost.WithClientVersion(a.version))
	}
	host := mcphost.New(opts...)

	for _, t := range BuiltinTools(cfg) {
		if err := host.RegisterBuiltin(t.Builtin()); err != nil {
			return nil, errors.Join(err, host.Close())
		}
	}
	for _, srv := range cfg.MCP.Servers {
		if err := host.RegisterServer(ctx, srv.ServerConfig()); err != nil {
			return nil, errors.Join(fmt.Errorf("app: tool host %q: %w", srv.Name, err), host.Close())
		}
		observe.Logger(ctx).Debug("connected tool host", "name", srv.Name, "transport", srv.Transport)
	}
	return host, nil
}

// BuiltinTools returns the in-process tools named in agent.builtin_tools.
// list_files_in_directory is confined to toolserver.root when set.
func BuiltinTools(cfg *config.Config) []tools.Tool {
	var all []tools.Tool
	all = append(all, weather.Tools()...)
	all = append(all, fileio.NewTools(fileio.WithRoot(cfg.ToolServer.Root))...)

	var out []tools.Tool
	for _, t := range all {
		if slices.Contains(cfg.Agent.BuiltinTools, t.Definition.Name) {
			out = append(out, t)
		}
	}
	return out
}
