package executor

import (
	"context"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/config"
	"github.com/arcline-ai/arcline/runtime/agent/domain"
	"github.com/arcline-ai/arcline/runtime/agent/hooks"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// processContext is the agent.ProcessContext handed to actions. It is scoped
// to one action execution so tool group resolution reflects the running
// action's declarations.
type processContext struct {
	process *Process
	action  *agent.Action
}

var _ agent.ProcessContext = (*processContext)(nil)

func (c *processContext) ProcessID() string { return c.process.id }

func (c *processContext) Agent() *agent.Agent { return c.process.agent }

func (c *processContext) Blackboard() *blackboard.Blackboard { return c.process.bb }

func (c *processContext) Types() *domain.Registry { return c.process.bb.Types() }

func (c *processContext) Model() model.Client { return c.process.model }

// Tools resolves the running action's tool groups. Unresolvable groups are
// skipped with a warning rather than failing the action: group availability
// is validated at invocation construction, so a miss here means a resolver
// mutation after start.
func (c *processContext) Tools() []*tools.Tool {
	if c.process.groups == nil || len(c.action.ToolGroups) == 0 {
		return nil
	}
	ts, err := c.process.groups.ToolsFor(c.action.ToolGroups)
	if err != nil {
		c.process.logger.Warn(context.Background(), "tool group not resolvable",
			"action", c.action.Name, "error", err.Error())
		return nil
	}
	return ts
}

func (c *processContext) Events() hooks.Bus { return c.process.events }

func (c *processContext) Logger() telemetry.Logger { return c.process.logger }

func (c *processContext) Metrics() telemetry.Metrics { return c.process.metrics }

func (c *processContext) Tracer() telemetry.Tracer { return c.process.tracer }

func (c *processContext) Config() config.Options { return c.process.cfg }

// RecordUsage folds model usage into the process totals. Usage is additive
// and monotone; the cost total feeds the early termination cost policy.
func (c *processContext) RecordUsage(usage model.TokenUsage) {
	c.process.mu.Lock()
	c.process.usage.Add(usage)
	c.process.mu.Unlock()
	c.process.appendHistory(HistoryEntry{Kind: EntryUsage, Usage: &usage})
}
