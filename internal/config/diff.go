package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProviderChanged is set when the model backend must be rebuilt.
	ProviderChanged bool

	// AgentChanged is set when prompt, sampling, timeouts or builtin tools
	// changed.
	AgentChanged bool

	MCPChanged bool
	MCPChanges []MCPServerDiff

	// RestartRequired names settings that only take effect after a restart.
	RestartRequired []string
}

// MCPServerDiff describes what changed for one tool host.
type MCPServerDiff struct {
	Name    string
	Added   bool
	Removed bool
	Changed bool
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ProviderChanged && !d.AgentChanged && !d.MCPChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new. MCP changes are reported sorted by server name.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.cors_origins")
	}

	d.ProviderChanged = !reflect.DeepEqual(old.Providers.LLM, new.Providers.LLM)
	d.AgentChanged = !reflect.DeepEqual(old.Agent, new.Agent)

	oldSrv := make(map[string]MCPServerConfig, len(old.MCP.Servers))
	for _, s := range old.MCP.Servers {
		oldSrv[s.Name] = s
	}
	newSrv := make(map[string]MCPServerConfig, len(new.MCP.Servers))
	for _, s := range new.MCP.Servers {
		newSrv[s.Name] = s
	}

	for _, name := range slices.Sorted(maps.Keys(oldSrv)) {
		n, ok := newSrv[name]
		switch {
		case !ok:
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Removed: true})
		case !reflect.DeepEqual(oldSrv[name], n):
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Changed: true})
		}
	}
	for _, name := range slices.Sorted(maps.Keys(newSrv)) {
		if _, ok := oldSrv[name]; !ok {
			d.MCPChanges = append(d.MCPChanges, MCPServerDiff{Name: name, Added: true})
		}
	}
	d.MCPChanged = len(d.MCPChanges) > 0

	return d
}
