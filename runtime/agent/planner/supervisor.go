package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/toolloop"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// Supervisor delegates action selection to an LLM. Each planning cycle emits
// a one-step plan holding a synthetic action; executing it runs a tool loop
// in which every agent action is a tool and each goal is a terminal tool the
// model calls when it believes the goal is reached.
type Supervisor struct {
	// Client drives the selection loop.
	Client model.Client
	// Model selects the provider model. Empty uses the client default.
	Model string
	// MaxIterations caps the selection loop. Zero uses the tool loop
	// default.
	MaxIterations int

	// ran tracks, per process, the non-rerunnable actions already invoked
	// through the selection loop. The executor never sees those runs, so the
	// supervisor keeps its own has-run bookkeeping.
	mu  sync.Mutex
	ran map[string]map[string]bool
}

// NewSupervisor returns a supervisor planner. The client is required.
func NewSupervisor(client model.Client) (*Supervisor, error) {
	if client == nil {
		return nil, &agent.ConfigurationError{Problems: []string{"supervisor planner requires a model client"}}
	}
	return &Supervisor{Client: client}, nil
}

// Type implements Planner.
func (p *Supervisor) Type() Type { return TypeSupervisor }

// Plan implements Planner. The synthetic action reruns freely: the executor
// drives it once per cycle until a goal is detected or the process fails.
func (p *Supervisor) Plan(_ context.Context, ag *agent.Agent, ws agent.WorldState) (*Plan, error) {
	if goal := achievedGoal(ag, ws); goal != nil {
		return &Plan{Goal: goal.Name}, nil
	}
	supervise := &agent.Action{
		Name:        "supervise",
		Description: "Delegate action selection to the model",
		CanRerun:    true,
		Execute:     p.execute(ag),
	}
	return &Plan{Actions: []*agent.Action{supervise}}, nil
}

// execute builds the synthetic action body: a tool loop over the agent's
// actions. Action tools run the underlying action in-process; goal tools end
// the loop by telling the model to answer without further calls.
func (p *Supervisor) execute(ag *agent.Agent) func(ctx context.Context, pctx agent.ProcessContext) (agent.ActionStatus, error) {
	return func(ctx context.Context, pctx agent.ProcessContext) (agent.ActionStatus, error) {
		cfg := pctx.Config()
		loop := toolloop.NewLoop(p.Client, p.actionTools(ag, pctx), cfg.ToolLoop)
		loop.Model = p.Model
		if p.MaxIterations > 0 {
			loop.MaxIterations = p.MaxIterations
		}
		loop.ProcessID = pctx.ProcessID()
		loop.Events = pctx.Events()
		loop.Logger = pctx.Logger()
		loop.LogPrompts = cfg.Verbosity.ShowPrompts
		loop.LogResponses = cfg.Verbosity.ShowLLMResponses
		res, err := loop.Run(ctx, p.prompt(ag, pctx), nil)
		if res != nil {
			pctx.RecordUsage(res.Usage)
		}
		if err != nil {
			if agent.IsControlFlow(err) {
				return agent.ActionStatus{}, err
			}
			return agent.Failed(err.Error()), nil
		}
		if res.Replan != nil {
			return agent.ActionStatus{}, res.Replan
		}
		return agent.Completed(), nil
	}
}

func (p *Supervisor) prompt(ag *agent.Agent, pctx agent.ProcessContext) []*model.Message {
	var goals []string
	for _, g := range ag.Goals {
		goals = append(goals, fmt.Sprintf("- %s: %s", g.Name, g.Description))
	}
	system := fmt.Sprintf(
		"You orchestrate the agent %q. Invoke action tools to make progress toward one of these goals:\n%s\n"+
			"When a goal is reached, call its goal tool, then answer with a short summary and no further tool calls.",
		ag.Name, strings.Join(goals, "\n"))
	return []*model.Message{
		model.SystemMessage(system),
		model.UserMessage("Current facts: " + strings.Join(p.worldFacts(pctx), ", ")),
	}
}

func (p *Supervisor) worldFacts(pctx agent.ProcessContext) []string {
	ws := p.projectFor(pctx)
	props := ws.Propositions()
	if len(props) == 0 {
		return []string{"none"}
	}
	return props
}

// projectFor snapshots the world state through the supervisor's own has-run
// bookkeeping.
func (p *Supervisor) projectFor(pctx agent.ProcessContext) agent.WorldState {
	return agent.Project(pctx.Blackboard(), pctx.Agent(), p.ranView(pctx.ProcessID()))
}

func (p *Supervisor) ranView(processID string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ran := p.ran[processID]
	if len(ran) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ran))
	for name, v := range ran {
		out[name] = v
	}
	return out
}

func (p *Supervisor) markRan(processID, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ran == nil {
		p.ran = make(map[string]map[string]bool)
	}
	if p.ran[processID] == nil {
		p.ran[processID] = make(map[string]bool)
	}
	p.ran[processID][action] = true
}

// actionTools converts agent actions and goals into the tool surface of the
// selection loop.
func (p *Supervisor) actionTools(ag *agent.Agent, pctx agent.ProcessContext) []*tools.Tool {
	ts := make([]*tools.Tool, 0, len(ag.Actions)+len(ag.Goals))
	for _, a := range ag.Actions {
		action := a
		ts = append(ts, &tools.Tool{
			Definition: tools.Definition{
				Name:        tools.Ident("action_" + action.Name),
				Description: action.Description,
				InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Call: func(ctx context.Context, _ json.RawMessage) (tools.Result, error) {
				ws := p.projectFor(pctx)
				if !action.CanRerun && ws[agent.HasRun(action.Name)] {
					return &tools.Error{Message: fmt.Sprintf("action %q already ran and cannot run again", action.Name)}, nil
				}
				if !ws.Satisfies(action.Preconditions()) {
					return &tools.Error{Message: fmt.Sprintf("action %q preconditions not met", action.Name)}, nil
				}
				status, err := action.Execute(ctx, pctx)
				if err != nil {
					if agent.IsControlFlow(err) {
						return nil, err
					}
					return &tools.Error{Message: err.Error()}, nil
				}
				if status.Code == agent.ActionFailed {
					return &tools.Error{Message: status.Message}, nil
				}
				if !action.CanRerun {
					p.markRan(pctx.ProcessID(), action.Name)
				}
				return &tools.Text{Content: fmt.Sprintf("action %q completed", action.Name)}, nil
			},
		})
	}
	for _, g := range ag.Goals {
		goal := g
		ts = append(ts, &tools.Tool{
			Definition: tools.Definition{
				Name:        tools.Ident("goal_" + goal.Name),
				Description: "Declare the goal reached: " + goal.Description,
				InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			},
			Call: func(_ context.Context, _ json.RawMessage) (tools.Result, error) {
				ws := p.projectFor(pctx)
				if !ws.Satisfies(goal.Pre) {
					return &tools.Error{Message: fmt.Sprintf("goal %q preconditions not met yet", goal.Name)}, nil
				}
				return &tools.Text{Content: fmt.Sprintf("goal %q reached, provide a final summary without tool calls", goal.Name)}, nil
			},
		})
	}
	return ts
}
