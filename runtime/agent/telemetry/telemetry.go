// Package telemetry defines the observability contracts used across the
// runtime: structured logging, metrics, and tracing. The runtime and its
// collaborators (planners, tool loops, stores) depend only on these
// interfaces; concrete implementations delegate to goa.design/clue and
// OpenTelemetry, with no-op variants for tests.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log records with alternating key-value pairs.
	// Implementations must be safe for concurrent use.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges. Tags are alternating
	// key-value strings (k1, v1, k2, v2, ...).
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates and retrieves spans for distributed tracing.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is a handle on an in-flight trace span.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}

	// ActionTelemetry holds structured observability metadata gathered while
	// executing a single action: wall-clock duration, how many QoS attempts
	// were consumed, and the aggregate model usage incurred by tool loops the
	// action drove. It travels with action results so subscribers can build
	// cost and latency dashboards without re-deriving the data.
	ActionTelemetry struct {
		// Duration is the total wall-clock time spent executing the action,
		// including retries.
		Duration time.Duration
		// Attempts counts how many times the action body ran (1 on first-try
		// success).
		Attempts int
		// InputTokens and OutputTokens aggregate model usage attributable to
		// this action when the action invoked the tool loop. Zero otherwise.
		InputTokens  int
		OutputTokens int
	}
)
