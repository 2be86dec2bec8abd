package planner

import (
	"container/heap"
	"context"
	"sort"

	"github.com/arcline-ai/arcline/runtime/agent"
)

// DefaultNodeBudget bounds A* expansions per planning cycle.
const DefaultNodeBudget = 10000

// GOAP plans with A* over world states. Edges are actions whose
// preconditions hold in the source state; successors apply the action's
// effects. The search returns the cheapest plan reaching any achievable
// goal, or nil when no goal is reachable within the node budget.
type GOAP struct {
	// NodeBudget caps expansions. Zero means DefaultNodeBudget.
	NodeBudget int
}

// NewGOAP returns a GOAP planner with the default node budget.
func NewGOAP() *GOAP { return &GOAP{} }

// Type implements Planner.
func (p *GOAP) Type() Type { return TypeGOAP }

type goapNode struct {
	state  agent.WorldState
	key    string
	parent *goapNode
	action *agent.Action
	// g is accumulated path cost, h the heuristic estimate to a goal.
	g float64
	h float64
	// path is the lexicographic action-name trail used to break cost ties
	// deterministically.
	path string
	idx  int
}

type goapFrontier []*goapNode

func (f goapFrontier) Len() int { return len(f) }
func (f goapFrontier) Less(i, j int) bool {
	fi, fj := f[i].g+f[i].h, f[j].g+f[j].h
	if fi != fj {
		return fi < fj
	}
	return f[i].path < f[j].path
}
func (f goapFrontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].idx, f[j].idx = i, j
}
func (f *goapFrontier) Push(x any) {
	n := x.(*goapNode)
	n.idx = len(*f)
	*f = append(*f, n)
}
func (f *goapFrontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*f = old[:len(old)-1]
	return n
}

// Plan runs the search. Step cost is cost(ws) - value(ws) shifted by a
// global floor so every edge weight is non-negative, which A* requires for
// admissibility.
func (p *GOAP) Plan(ctx context.Context, ag *agent.Agent, ws agent.WorldState) (*Plan, error) {
	if len(ag.Goals) == 0 {
		return nil, nil
	}
	budget := p.NodeBudget
	if budget <= 0 {
		budget = DefaultNodeBudget
	}

	// Stable action order makes expansion, and therefore tie-breaking,
	// deterministic.
	actions := make([]*agent.Action, len(ag.Actions))
	copy(actions, ag.Actions)
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })

	floor := costFloor(actions, ws)

	start := &goapNode{state: ws, key: ws.Key(), h: p.heuristic(ag, ws)}
	if goal := achievedGoal(ag, ws); goal != nil {
		// Already satisfied; an empty plan tells the executor to check goal
		// completion directly.
		return &Plan{Goal: goal.Name, Actions: nil}, nil
	}

	frontier := &goapFrontier{}
	heap.Init(frontier)
	heap.Push(frontier, start)
	best := map[string]float64{start.key: 0}

	expanded := 0
	for frontier.Len() > 0 && expanded < budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := heap.Pop(frontier).(*goapNode)
		expanded++

		if goal := achievedGoal(ag, node.state); goal != nil {
			return assemble(node, goal), nil
		}

		for _, a := range actions {
			if !selectable(a, node.state) {
				continue
			}
			next := node.state.Apply(a.Effects())
			key := next.Key()
			if key == node.key {
				// Action changed nothing; expanding it would loop.
				continue
			}
			step := a.CostOf(node.state) - a.ValueOf(node.state) + floor
			if step < 0 {
				// State-dependent costs can dip below the floor computed at
				// the initial state; a negative edge would break the search.
				step = 0
			}
			g := node.g + step
			if prev, seen := best[key]; seen && prev <= g {
				continue
			}
			best[key] = g
			heap.Push(frontier, &goapNode{
				state:  next,
				key:    key,
				parent: node,
				action: a,
				g:      g,
				h:      p.heuristic(ag, next),
				path:   node.path + "/" + a.Name,
			})
		}
	}
	return nil, nil
}

// heuristic is the minimum number of unsatisfied goal propositions over all
// goals. Each action satisfies at least one proposition per unit of floored
// cost in the worst case, keeping the estimate admissible enough for
// deterministic planning.
func (p *GOAP) heuristic(ag *agent.Agent, ws agent.WorldState) float64 {
	min := -1
	for _, g := range ag.Goals {
		n := ws.Unsatisfied(g.Pre)
		if g.OutputType != "" && !ws[agent.HasType(g.OutputType)] {
			n++
		}
		if min < 0 || n < min {
			min = n
		}
	}
	if min < 0 {
		return 0
	}
	return float64(min)
}

// costFloor returns the shift that makes every declared action's step cost
// non-negative at the initial state. Cost and value functions of later states
// are unknowable here, so expansion additionally clamps each edge at zero.
func costFloor(actions []*agent.Action, ws agent.WorldState) float64 {
	floor := 0.0
	for _, a := range actions {
		if net := a.CostOf(ws) - a.ValueOf(ws); net < -floor {
			floor = -net
		}
	}
	return floor
}

func achievedGoal(ag *agent.Agent, ws agent.WorldState) *agent.Goal {
	var best *agent.Goal
	for _, g := range ag.Goals {
		if !goalSatisfied(g, ws) {
			continue
		}
		if best == nil || g.Priority > best.Priority || (g.Priority == best.Priority && g.Name < best.Name) {
			best = g
		}
	}
	return best
}

func assemble(node *goapNode, goal *agent.Goal) *Plan {
	var actions []*agent.Action
	for n := node; n != nil && n.action != nil; n = n.parent {
		actions = append(actions, n.action)
	}
	// Reverse: the trail was collected leaf to root.
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	return &Plan{Goal: goal.Name, Actions: actions, Cost: node.g}
}
