package agent

import (
	"sort"
	"strings"

	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
)

// WorldState is the boolean projection of a blackboard the planner reasons
// over. Absent propositions are false.
type WorldState map[string]bool

// Project builds the world state for the agent from the blackboard and the
// set of actions that have run in this process:
//
//   - "has:<type>" for every registered type with a visible value on the
//     blackboard
//   - "cond:<name>" for every declared condition, evaluated per its kind
//   - "ran:<action>" for every entry in ran
//
// Computed condition evaluators that fail are treated as false; callers that
// need the error evaluate the condition directly.
func Project(bb *blackboard.Blackboard, ag *Agent, ran map[string]bool) WorldState {
	ws := make(WorldState)

	if types := bb.Types(); types != nil {
		for _, name := range types.Names() {
			if bb.Last(name) != nil {
				ws[HasType(name)] = true
			}
		}
	}

	for _, c := range ag.Conditions {
		ws[Cond(c.Name)] = evalCondition(c, bb)
	}

	for name, ok := range ran {
		if ok {
			ws[HasRun(name)] = true
		}
	}
	return ws
}

func evalCondition(c *Condition, bb *blackboard.Blackboard) bool {
	switch c.Kind {
	case ConditionStructural:
		return bb.Last(c.TypeName) != nil
	case ConditionComputed:
		if c.Evaluate == nil {
			return false
		}
		v, err := c.Evaluate(bb)
		return err == nil && v
	default:
		v, _ := bb.GetCondition(c.Name)
		return v
	}
}

// Holds reports whether the proposition has the asserted truth value.
func (ws WorldState) Holds(p Predicate) bool {
	return ws[p.Prop] == p.Value
}

// Satisfies reports whether every predicate holds.
func (ws WorldState) Satisfies(preds []Predicate) bool {
	for _, p := range preds {
		if !ws.Holds(p) {
			return false
		}
	}
	return true
}

// Apply returns a copy of the state with the effects applied. The receiver is
// not modified.
func (ws WorldState) Apply(effects []Effect) WorldState {
	next := ws.Clone()
	for _, e := range effects {
		if e.Value {
			next[e.Prop] = true
		} else {
			delete(next, e.Prop)
		}
	}
	return next
}

// Clone returns an independent copy.
func (ws WorldState) Clone() WorldState {
	next := make(WorldState, len(ws))
	for k, v := range ws {
		next[k] = v
	}
	return next
}

// Unsatisfied counts the predicates that do not hold.
func (ws WorldState) Unsatisfied(preds []Predicate) int {
	n := 0
	for _, p := range preds {
		if !ws.Holds(p) {
			n++
		}
	}
	return n
}

// Key returns a canonical string identity for the state, used by planners to
// dedupe visited states.
func (ws WorldState) Key() string {
	props := make([]string, 0, len(ws))
	for p, v := range ws {
		if v {
			props = append(props, p)
		}
	}
	sort.Strings(props)
	return strings.Join(props, "|")
}

// Propositions returns the true propositions in sorted order, for events and
// diagnostics.
func (ws WorldState) Propositions() []string {
	props := make([]string, 0, len(ws))
	for p, v := range ws {
		if v {
			props = append(props, p)
		}
	}
	sort.Strings(props)
	return props
}
