package planner

import (
	"context"

	"github.com/arcline-ai/arcline/runtime/agent"
)

// Utility plans greedily: each cycle emits the single selectable action with
// the highest net value (value minus cost) in the current world state. No
// lookahead; ties break lexicographically by name.
type Utility struct{}

// NewUtility returns a utility planner.
func NewUtility() *Utility { return &Utility{} }

// Type implements Planner.
func (p *Utility) Type() Type { return TypeUtility }

// Plan picks the best single action. When a goal is already satisfied it
// returns an empty plan naming the goal; when nothing is selectable it
// returns nil and the process is stuck.
func (p *Utility) Plan(_ context.Context, ag *agent.Agent, ws agent.WorldState) (*Plan, error) {
	if goal := achievedGoal(ag, ws); goal != nil {
		return &Plan{Goal: goal.Name}, nil
	}

	var (
		best    *agent.Action
		bestNet float64
	)
	for _, a := range ag.Actions {
		if !selectable(a, ws) {
			continue
		}
		net := a.ValueOf(ws) - a.CostOf(ws)
		if best == nil || net > bestNet || (net == bestNet && a.Name < best.Name) {
			best, bestNet = a, net
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Plan{Actions: []*agent.Action{best}, Cost: best.CostOf(ws)}, nil
}
