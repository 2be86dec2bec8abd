// Package agent defines the descriptor model of the execution platform: typed
// actions, goals, conditions, the agents that bundle them, and the world state
// projection planners reason over. Descriptors are immutable after
// construction; running state lives in the executor package.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/domain"
)

// ConditionKind distinguishes how a condition is evaluated.
type ConditionKind string

const (
	// ConditionStructural holds when a value of the condition's type exists
	// on the blackboard.
	ConditionStructural ConditionKind = "structural"
	// ConditionStored reads a boolean set on the blackboard by an action.
	ConditionStored ConditionKind = "stored"
	// ConditionComputed delegates to an external evaluator.
	ConditionComputed ConditionKind = "computed"
)

type (
	// Binding describes an input or output slot of an action or goal. When
	// Name is empty the slot is positional: it matches the most recent
	// blackboard value assignable to the type.
	Binding struct {
		// Name is the blackboard binding name, optional.
		Name string
		// Type is the domain type name of the slot.
		Type string
		// Optional slots do not block action selection when unsatisfied.
		Optional bool
	}

	// Predicate asserts the truth value of one world-state proposition.
	Predicate struct {
		// Prop is the proposition, built with HasType, HasRun, or Cond.
		Prop string
		// Value is the asserted truth value.
		Value bool
	}

	// Effect sets one world-state proposition after an action runs.
	Effect struct {
		Prop  string
		Value bool
	}

	// QoS is the retry discipline wrapped around each action invocation.
	QoS struct {
		// MaxAttempts bounds invocations per plan step. Zero means one.
		MaxAttempts int
		// Backoff is the delay between attempts.
		Backoff time.Duration
		// RetryOn lists the error kinds that trigger a retry. Errors outside
		// the set fail the action immediately.
		RetryOn []ErrorKind
	}

	// Action is a typed unit of work over the blackboard. Execute reads its
	// inputs from and writes its outputs to the blackboard through the
	// ProcessContext.
	Action struct {
		Name        string
		Description string
		// Inputs must be satisfiable on the blackboard for the action to be
		// selectable.
		Inputs []Binding
		// Outputs declares what the action produces.
		Outputs []Binding
		// Cost estimates the expense of running the action in the given
		// world state. Nil means cost 1.
		Cost func(WorldState) float64
		// Value estimates the benefit of running the action. Nil means 0.
		Value func(WorldState) float64
		// Pre must hold in the world state for the action to be selectable.
		Pre []Predicate
		// Post lists the propositions the action makes true or false.
		Post []Effect
		// CanRerun permits repeated execution within one process. When
		// false, an implicit "has run" proposition blocks reselection.
		CanRerun bool
		// QoS configures retries around Execute.
		QoS QoS
		// ToolGroups names the tool groups the action requires, resolved
		// through the group resolver at invocation construction.
		ToolGroups []string
		// Execute runs the action. Control-flow signals (replan, await,
		// kill) must be returned, not swallowed.
		Execute func(ctx context.Context, pctx ProcessContext) (ActionStatus, error)
	}

	// Goal is a desired end condition plus an optional expected output type.
	Goal struct {
		Name        string
		Description string
		Inputs      []Binding
		// OutputType, when set, must have a value on the blackboard for the
		// goal to count as achieved.
		OutputType string
		// Pre must hold in the world state for the goal to be achieved.
		Pre []Predicate
		// Priority orders goals when several are achievable.
		Priority float64
	}

	// Condition is a named boolean predicate over the world state.
	Condition struct {
		Name        string
		Description string
		Kind        ConditionKind
		// TypeName is the domain type a structural condition checks for.
		TypeName string
		// Evaluate computes the truth value for computed conditions.
		Evaluate func(bb *blackboard.Blackboard) (bool, error)
	}

	// Agent is an immutable bundle of actions, goals, and conditions.
	Agent struct {
		Name        string
		Provider    string
		Version     string
		Description string
		Actions     []*Action
		Goals       []*Goal
		Conditions  []*Condition
		// Opaque carries caller-defined metadata, never interpreted by the
		// platform.
		Opaque map[string]any
	}
)

// Proposition namespaces. World-state propositions are flat strings built
// from these prefixes so plans serialize and log cleanly.
const (
	propHasPrefix  = "has:"
	propRanPrefix  = "ran:"
	propCondPrefix = "cond:"
)

// HasType returns the proposition asserting a value of the named domain type
// exists on the blackboard.
func HasType(typeName string) string { return propHasPrefix + typeName }

// HasRun returns the proposition asserting the named action has run in this
// process.
func HasRun(actionName string) string { return propRanPrefix + actionName }

// Cond returns the proposition for the named condition.
func Cond(conditionName string) string { return propCondPrefix + conditionName }

// CostOf evaluates the action's cost in the given world state.
func (a *Action) CostOf(ws WorldState) float64 {
	if a.Cost == nil {
		return 1
	}
	return a.Cost(ws)
}

// ValueOf evaluates the action's value in the given world state.
func (a *Action) ValueOf(ws WorldState) float64 {
	if a.Value == nil {
		return 0
	}
	return a.Value(ws)
}

// Effects returns the action's declared effects plus, for non-rerunnable
// actions, the implicit "has run" proposition, plus a "has" proposition per
// declared output type.
func (a *Action) Effects() []Effect {
	effects := make([]Effect, 0, len(a.Post)+len(a.Outputs)+1)
	effects = append(effects, a.Post...)
	for _, out := range a.Outputs {
		effects = append(effects, Effect{Prop: HasType(out.Type), Value: true})
	}
	if !a.CanRerun {
		effects = append(effects, Effect{Prop: HasRun(a.Name), Value: true})
	}
	return effects
}

// Preconditions returns the action's declared preconditions plus a "has"
// requirement per required input type.
func (a *Action) Preconditions() []Predicate {
	pre := make([]Predicate, 0, len(a.Pre)+len(a.Inputs))
	pre = append(pre, a.Pre...)
	for _, in := range a.Inputs {
		if in.Optional {
			continue
		}
		pre = append(pre, Predicate{Prop: HasType(in.Type), Value: true})
	}
	return pre
}

// Attempts returns the effective attempt bound, at least one.
func (q QoS) Attempts() int {
	if q.MaxAttempts <= 0 {
		return 1
	}
	return q.MaxAttempts
}

// Retriable reports whether the kind is in the retry set.
func (q QoS) Retriable(kind ErrorKind) bool {
	for _, k := range q.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

// ActionByName returns the named action, or nil.
func (ag *Agent) ActionByName(name string) *Action {
	for _, a := range ag.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ConditionByName returns the named condition, or nil.
func (ag *Agent) ConditionByName(name string) *Condition {
	for _, c := range ag.Conditions {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Validate checks the agent's internal consistency: unique descriptor names,
// condition references resolving to declared conditions, and domain types
// resolving in the registry when one is supplied. It reports all problems at
// once.
func (ag *Agent) Validate(types *domain.Registry) error {
	var problems []string
	if ag.Name == "" {
		problems = append(problems, "agent name is required")
	}
	if len(ag.Actions) == 0 {
		problems = append(problems, "agent declares no actions")
	}

	seen := make(map[string]bool)
	for _, a := range ag.Actions {
		if seen[a.Name] {
			problems = append(problems, fmt.Sprintf("duplicate action %q", a.Name))
		}
		seen[a.Name] = true
		if a.Execute == nil {
			problems = append(problems, fmt.Sprintf("action %q has no execute function", a.Name))
		}
		problems = append(problems, ag.checkPredicates(types, fmt.Sprintf("action %q", a.Name), a.Pre)...)
		for _, e := range a.Post {
			problems = append(problems, ag.checkProp(types, fmt.Sprintf("action %q effect", a.Name), e.Prop)...)
		}
		problems = append(problems, ag.checkBindings(types, fmt.Sprintf("action %q", a.Name), a.Inputs)...)
		problems = append(problems, ag.checkBindings(types, fmt.Sprintf("action %q", a.Name), a.Outputs)...)
	}

	goals := make(map[string]bool)
	for _, g := range ag.Goals {
		if goals[g.Name] {
			problems = append(problems, fmt.Sprintf("duplicate goal %q", g.Name))
		}
		goals[g.Name] = true
		problems = append(problems, ag.checkPredicates(types, fmt.Sprintf("goal %q", g.Name), g.Pre)...)
		if g.OutputType != "" && types != nil {
			if _, ok := types.Lookup(g.OutputType); !ok {
				problems = append(problems, fmt.Sprintf("goal %q output type %q is not registered", g.Name, g.OutputType))
			}
		}
	}

	conds := make(map[string]bool)
	for _, c := range ag.Conditions {
		if conds[c.Name] {
			problems = append(problems, fmt.Sprintf("duplicate condition %q", c.Name))
		}
		conds[c.Name] = true
		switch c.Kind {
		case ConditionStructural:
			if c.TypeName == "" {
				problems = append(problems, fmt.Sprintf("structural condition %q names no type", c.Name))
			}
		case ConditionComputed:
			if c.Evaluate == nil {
				problems = append(problems, fmt.Sprintf("computed condition %q has no evaluator", c.Name))
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ConfigurationError{Agent: ag.Name, Problems: problems}
	}
	return nil
}

func (ag *Agent) checkPredicates(types *domain.Registry, where string, preds []Predicate) []string {
	var problems []string
	for _, p := range preds {
		problems = append(problems, ag.checkProp(types, where, p.Prop)...)
	}
	return problems
}

func (ag *Agent) checkProp(types *domain.Registry, where, prop string) []string {
	switch {
	case strings.HasPrefix(prop, propCondPrefix):
		name := strings.TrimPrefix(prop, propCondPrefix)
		if ag.ConditionByName(name) == nil {
			return []string{fmt.Sprintf("%s references undeclared condition %q", where, name)}
		}
	case strings.HasPrefix(prop, propHasPrefix):
		name := strings.TrimPrefix(prop, propHasPrefix)
		if types != nil {
			if _, ok := types.Lookup(name); !ok {
				return []string{fmt.Sprintf("%s references unregistered type %q", where, name)}
			}
		}
	case strings.HasPrefix(prop, propRanPrefix):
		name := strings.TrimPrefix(prop, propRanPrefix)
		if ag.ActionByName(name) == nil {
			return []string{fmt.Sprintf("%s references undeclared action %q", where, name)}
		}
	}
	return nil
}

func (ag *Agent) checkBindings(types *domain.Registry, where string, bindings []Binding) []string {
	if types == nil {
		return nil
	}
	var problems []string
	for _, b := range bindings {
		if _, ok := types.Lookup(b.Type); !ok {
			problems = append(problems, fmt.Sprintf("%s binding %q references unregistered type %q", where, b.Name, b.Type))
		}
	}
	return problems
}
