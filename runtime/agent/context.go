package agent

import (
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/config"
	"github.com/arcline-ai/arcline/runtime/agent/domain"
	"github.com/arcline-ai/arcline/runtime/agent/hooks"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// ProcessContext is the view of a running process handed to actions. It is
// the only channel through which actions read and mutate process state; the
// executor owns the blackboard and serializes access, so actions never need
// their own locking.
type ProcessContext interface {
	// ProcessID identifies the owning process.
	ProcessID() string
	// Agent returns the immutable agent descriptor.
	Agent() *Agent
	// Blackboard returns the process blackboard.
	Blackboard() *blackboard.Blackboard
	// Types returns the domain type registry backing the blackboard.
	Types() *domain.Registry
	// Model returns the LLM client selected for this process.
	Model() model.Client
	// Tools returns the tools resolved for the current action from its
	// declared tool groups.
	Tools() []*tools.Tool
	// Events returns the process event bus.
	Events() hooks.Bus
	// Logger returns the process logger.
	Logger() telemetry.Logger
	// Metrics returns the process metrics sink.
	Metrics() telemetry.Metrics
	// Tracer returns the process tracer.
	Tracer() telemetry.Tracer
	// Config returns the runtime options the process was started with.
	Config() config.Options
	// RecordUsage folds model usage into the process totals checked by early
	// termination cost policies.
	RecordUsage(usage model.TokenUsage)
}
