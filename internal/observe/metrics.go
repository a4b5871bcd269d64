// Package observe provides application-wide observability primitives for
// mcpagent: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so metrics can be scraped from
// the /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mcpagent metrics.
const meterName = "github.com/MrWong99/mcpagent"

// Status values used with the "status" attribute.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// LLMDuration tracks model round-trip latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("mode", "send"|"stream")
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool call latency. Use with attribute:
	//   attribute.String("tool", ...)
	ToolExecutionDuration metric.Float64Histogram

	// TurnDuration tracks a full coordinator turn, tool calls included.
	TurnDuration metric.Float64Histogram

	// ProviderRequests counts model requests by provider and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts model failures by provider.
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// Turns counts completed conversation turns by status.
	Turns metric.Int64Counter

	// DroppedToolCalls counts tool calls requested in the follow-up reply,
	// which are never executed.
	DroppedToolCalls metric.Int64Counter

	// ActiveSessions tracks open interactive sessions (REPL, websocket).
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route pattern and status class ("2xx", "4xx", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Local model
// inference routinely takes tens of seconds, so the range is wide.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.LLMDuration, err = histogram("mcpagent.llm.duration", "Latency of model requests."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("mcpagent.tool_execution.duration", "Latency of tool execution."); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = histogram("mcpagent.turn.duration", "Latency of a full conversation turn."); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mcpagent.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("mcpagent.provider.requests",
		metric.WithDescription("Total model requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("mcpagent.provider.errors",
		metric.WithDescription("Total model failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mcpagent.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("mcpagent.turns",
		metric.WithDescription("Total conversation turns by status."),
	); err != nil {
		return nil, err
	}
	if met.DroppedToolCalls, err = m.Int64Counter("mcpagent.tool.dropped",
		metric.WithDescription("Tool calls requested in a follow-up reply and not executed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("mcpagent.active_sessions",
		metric.WithDescription("Number of open interactive sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// StatusOf maps an error to [StatusOK] or [StatusError].
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordProviderRequest records one model request and its latency.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, mode string, seconds float64, err error) {
	m.LLMDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("mode", mode),
	))
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", StatusOf(err)),
	))
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, seconds float64, err error) {
	m.ToolExecutionDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", StatusOf(err)),
	))
}

// RecordTurn records a finished conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context, seconds float64, err error) {
	m.TurnDuration.Record(ctx, seconds)
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", StatusOf(err))))
}
