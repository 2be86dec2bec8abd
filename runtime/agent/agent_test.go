package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/domain"
)

func noopExecute(context.Context, ProcessContext) (ActionStatus, error) {
	return Completed(), nil
}

func TestEffectsIncludeImplicitPropositions(t *testing.T) {
	a := &Action{
		Name:    "draft",
		Outputs: []Binding{{Type: "Report"}},
		Post:    []Effect{{Prop: Cond("drafted"), Value: true}},
	}
	effects := a.Effects()
	require.Contains(t, effects, Effect{Prop: HasType("Report"), Value: true})
	require.Contains(t, effects, Effect{Prop: Cond("drafted"), Value: true})
	require.Contains(t, effects, Effect{Prop: HasRun("draft"), Value: true},
		"non-rerunnable actions record that they ran")

	a.CanRerun = true
	for _, e := range a.Effects() {
		require.NotEqual(t, HasRun("draft"), e.Prop)
	}
}

func TestPreconditionsIncludeRequiredInputs(t *testing.T) {
	a := &Action{
		Name: "summarize",
		Inputs: []Binding{
			{Type: "Report"},
			{Type: "Note", Optional: true},
		},
		Pre: []Predicate{{Prop: Cond("ready"), Value: true}},
	}
	pre := a.Preconditions()
	require.Contains(t, pre, Predicate{Prop: HasType("Report"), Value: true})
	require.Contains(t, pre, Predicate{Prop: Cond("ready"), Value: true})
	for _, p := range pre {
		require.NotEqual(t, HasType("Note"), p.Prop, "optional inputs never gate selection")
	}
}

func TestQoSDefaults(t *testing.T) {
	var q QoS
	require.Equal(t, 1, q.Attempts())
	require.False(t, q.Retriable(ErrorKindTransient))

	q = QoS{MaxAttempts: 3, RetryOn: []ErrorKind{ErrorKindTransient, ErrorKindToolTimeout}}
	require.Equal(t, 3, q.Attempts())
	require.True(t, q.Retriable(ErrorKindTransient))
	require.True(t, q.Retriable(ErrorKindToolTimeout))
	require.False(t, q.Retriable(ErrorKindValidation))
}

func TestCostAndValueDefaults(t *testing.T) {
	a := &Action{Name: "x"}
	require.Equal(t, 1.0, a.CostOf(nil))
	require.Equal(t, 0.0, a.ValueOf(nil))

	a.Cost = func(WorldState) float64 { return 2.5 }
	a.Value = func(WorldState) float64 { return 4 }
	require.Equal(t, 2.5, a.CostOf(nil))
	require.Equal(t, 4.0, a.ValueOf(nil))
}

func TestValidateReportsAllProblems(t *testing.T) {
	types := domain.NewRegistry()
	types.MustRegister(domain.Dynamic("Report"))

	ag := &Agent{
		Name: "reviewer",
		Actions: []*Action{
			{Name: "a", Execute: noopExecute},
			{Name: "a", Execute: noopExecute}, // duplicate
			{Name: "b"},                       // no execute
			{
				Name:    "c",
				Execute: noopExecute,
				Pre:     []Predicate{{Prop: Cond("missing"), Value: true}},
				Inputs:  []Binding{{Name: "in", Type: "Unknown"}},
			},
		},
		Goals: []*Goal{
			{Name: "g", OutputType: "Nowhere"},
		},
		Conditions: []*Condition{
			{Name: "structural", Kind: ConditionStructural},
			{Name: "computed", Kind: ConditionComputed},
		},
	}

	err := ag.Validate(types)
	require.Error(t, err)
	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
	require.Equal(t, "reviewer", cfg.Agent)

	joined := cfg.Error()
	require.Contains(t, joined, `duplicate action "a"`)
	require.Contains(t, joined, `action "b" has no execute function`)
	require.Contains(t, joined, `undeclared condition "missing"`)
	require.Contains(t, joined, `unregistered type "Unknown"`)
	require.Contains(t, joined, `goal "g" output type "Nowhere" is not registered`)
	require.Contains(t, joined, `structural condition "structural" names no type`)
	require.Contains(t, joined, `computed condition "computed" has no evaluator`)
}

func TestValidateAcceptsWellFormedAgent(t *testing.T) {
	types := domain.NewRegistry()
	types.MustRegister(domain.Dynamic("Report"))

	ag := &Agent{
		Name: "writer",
		Actions: []*Action{{
			Name:    "draft",
			Outputs: []Binding{{Type: "Report"}},
			Execute: noopExecute,
		}},
		Goals: []*Goal{{Name: "done", OutputType: "Report"}},
	}
	require.NoError(t, ag.Validate(types))
}

func TestValidateRequiresActions(t *testing.T) {
	err := (&Agent{Name: "empty"}).Validate(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no actions")
}

func TestActionAndConditionLookup(t *testing.T) {
	ag := &Agent{
		Actions:    []*Action{{Name: "draft"}},
		Conditions: []*Condition{{Name: "ready"}},
	}
	require.NotNil(t, ag.ActionByName("draft"))
	require.Nil(t, ag.ActionByName("missing"))
	require.NotNil(t, ag.ConditionByName("ready"))
	require.Nil(t, ag.ConditionByName("missing"))
}

func TestErrorClassification(t *testing.T) {
	plain := errors.New("boom")
	require.Equal(t, ErrorKindTransient, KindOf(plain), "unclassified errors stay retriable")
	require.Equal(t, ErrorKindValidation, KindOf(Classified(ErrorKindValidation, plain)))
	require.Equal(t, ErrorKindTransient, KindOf(Transient(plain)))

	wrapped := fmt.Errorf("outer: %w", Classified(ErrorKindToolNotFound, plain))
	require.Equal(t, ErrorKindToolNotFound, KindOf(wrapped))
	require.ErrorIs(t, wrapped, plain)
}

func TestIsControlFlow(t *testing.T) {
	require.True(t, IsControlFlow(&ReplanRequestedError{Reason: "stale"}))
	require.True(t, IsControlFlow(&AwaitableError{}))
	require.True(t, IsControlFlow(&ProcessKilledError{}))
	require.True(t, IsControlFlow(fmt.Errorf("wrapped: %w", &ReplanRequestedError{})))
	require.False(t, IsControlFlow(errors.New("ordinary")))
	require.False(t, IsControlFlow(Transient(errors.New("retry me"))))
}

func TestProcessStatusTerminal(t *testing.T) {
	terminal := []ProcessStatus{StatusCompleted, StatusFailed, StatusKilled, StatusStuck}
	for _, s := range terminal {
		require.True(t, s.Terminal(), string(s))
	}
	for _, s := range []ProcessStatus{StatusReady, StatusRunning, StatusWaiting, StatusPaused} {
		require.False(t, s.Terminal(), string(s))
	}
}
