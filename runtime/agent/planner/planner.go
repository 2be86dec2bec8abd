// Package planner selects the next actions for an agent process. Three
// disciplines are provided: GOAP (A* over world states), Utility (greedy
// single step), and Supervisor (LLM-driven selection treating actions as
// tools).
package planner

import (
	"context"

	"github.com/arcline-ai/arcline/runtime/agent"
)

// Type selects the planning discipline.
type Type string

const (
	TypeGOAP       Type = "GOAP"
	TypeUtility    Type = "UTILITY"
	TypeSupervisor Type = "SUPERVISOR"
)

type (
	// Planner produces the next plan for an agent given the current world
	// state. A nil plan with a nil error means no plan exists and the
	// process is stuck.
	Planner interface {
		// Plan computes the next plan. Implementations must be
		// deterministic given identical inputs.
		Plan(ctx context.Context, ag *agent.Agent, ws agent.WorldState) (*Plan, error)

		// Type identifies the discipline for events and diagnostics.
		Type() Type
	}

	// Plan is an ordered sequence of actions intended to reach a goal.
	Plan struct {
		// Goal names the targeted goal, empty when the discipline does not
		// commit to one.
		Goal string
		// Actions is the execution order.
		Actions []*agent.Action
		// Cost is the planner's estimate of total plan cost, zero for
		// disciplines that do not estimate.
		Cost float64
	}
)

// ActionNames returns the plan's action names in order, for events.
func (p *Plan) ActionNames() []string {
	names := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		names[i] = a.Name
	}
	return names
}

// selectable reports whether the action can be chosen in the given state:
// its preconditions hold and, for non-rerunnable actions, it has not run.
func selectable(a *agent.Action, ws agent.WorldState) bool {
	if !a.CanRerun && ws[agent.HasRun(a.Name)] {
		return false
	}
	return ws.Satisfies(a.Preconditions())
}

// goalSatisfied reports whether the goal's preconditions hold in the state.
// The output-value check on the blackboard is the executor's job; planners
// only reason over propositions, so a goal with an output type also requires
// the corresponding "has" proposition.
func goalSatisfied(g *agent.Goal, ws agent.WorldState) bool {
	if !ws.Satisfies(g.Pre) {
		return false
	}
	if g.OutputType != "" && !ws[agent.HasType(g.OutputType)] {
		return false
	}
	return true
}
