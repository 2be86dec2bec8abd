package planner

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent"
)

func ok(context.Context, agent.ProcessContext) (agent.ActionStatus, error) {
	return agent.Completed(), nil
}

// pipelineAgent declares fetch -> summarize with a goal on the summary type.
func pipelineAgent() *agent.Agent {
	return &agent.Agent{
		Name: "pipeline",
		Actions: []*agent.Action{
			{
				Name:    "fetch",
				Outputs: []agent.Binding{{Type: "Data"}},
				Execute: ok,
			},
			{
				Name:    "summarize",
				Inputs:  []agent.Binding{{Type: "Data"}},
				Outputs: []agent.Binding{{Type: "Summary"}},
				Execute: ok,
			},
		},
		Goals: []*agent.Goal{{Name: "summarized", OutputType: "Summary"}},
	}
}

func TestGOAPFindsActionChain(t *testing.T) {
	p := NewGOAP()
	pl, err := p.Plan(context.Background(), pipelineAgent(), agent.WorldState{})
	require.NoError(t, err)
	require.NotNil(t, pl)
	require.Equal(t, []string{"fetch", "summarize"}, pl.ActionNames())
	require.Equal(t, "summarized", pl.Goal)
}

func TestGOAPSkipsSatisfiedPrefix(t *testing.T) {
	p := NewGOAP()
	ws := agent.WorldState{agent.HasType("Data"): true}
	pl, err := p.Plan(context.Background(), pipelineAgent(), ws)
	require.NoError(t, err)
	require.NotNil(t, pl)
	require.Equal(t, []string{"summarize"}, pl.ActionNames())
}

func TestGOAPAchievedGoalYieldsEmptyPlan(t *testing.T) {
	p := NewGOAP()
	ws := agent.WorldState{agent.HasType("Summary"): true}
	pl, err := p.Plan(context.Background(), pipelineAgent(), ws)
	require.NoError(t, err)
	require.NotNil(t, pl)
	require.Empty(t, pl.Actions)
	require.Equal(t, "summarized", pl.Goal)
}

func TestGOAPNoGoalsMeansNoPlan(t *testing.T) {
	p := NewGOAP()
	ag := pipelineAgent()
	ag.Goals = nil
	pl, err := p.Plan(context.Background(), ag, agent.WorldState{})
	require.NoError(t, err)
	require.Nil(t, pl)
}

func TestGOAPUnreachableGoalIsNil(t *testing.T) {
	p := NewGOAP()
	ag := pipelineAgent()
	ag.Goals = []*agent.Goal{{Name: "impossible", OutputType: "Nonexistent"}}
	pl, err := p.Plan(context.Background(), ag, agent.WorldState{})
	require.NoError(t, err)
	require.Nil(t, pl)
}

func TestGOAPRespectsNoRerun(t *testing.T) {
	p := NewGOAP()
	ag := pipelineAgent()
	// fetch already ran and cannot rerun, but its output is gone: the goal is
	// unreachable.
	ws := agent.WorldState{agent.HasRun("fetch"): true}
	pl, err := p.Plan(context.Background(), ag, ws)
	require.NoError(t, err)
	require.Nil(t, pl)
}

func TestGOAPPrefersCheaperPath(t *testing.T) {
	expensive := func(agent.WorldState) float64 { return 5 }
	ag := &agent.Agent{
		Name: "router",
		Actions: []*agent.Action{
			{Name: "direct", Cost: expensive, Outputs: []agent.Binding{{Type: "Result"}}, Execute: ok},
			{Name: "step1", Outputs: []agent.Binding{{Type: "Mid"}}, Execute: ok},
			{Name: "step2", Inputs: []agent.Binding{{Type: "Mid"}}, Outputs: []agent.Binding{{Type: "Result"}}, Execute: ok},
		},
		Goals: []*agent.Goal{{Name: "done", OutputType: "Result"}},
	}
	pl, err := NewGOAP().Plan(context.Background(), ag, agent.WorldState{})
	require.NoError(t, err)
	require.NotNil(t, pl)
	require.Equal(t, []string{"step1", "step2"}, pl.ActionNames())
}

func TestGOAPStateDependentValueKeepsEdgesNonNegative(t *testing.T) {
	// "harvest" is worthless at the initial state but outvalues its cost once
	// "prepare" established the midpoint, dropping its net below the floor
	// computed up front. The search must still terminate on the right chain
	// with a non-negative total cost.
	lateValue := func(ws agent.WorldState) float64 {
		if ws[agent.HasType("Mid")] {
			return 10
		}
		return 0
	}
	ag := &agent.Agent{
		Name: "farm",
		Actions: []*agent.Action{
			{Name: "prepare", Outputs: []agent.Binding{{Type: "Mid"}}, Execute: ok},
			{Name: "harvest", Value: lateValue, Inputs: []agent.Binding{{Type: "Mid"}}, Outputs: []agent.Binding{{Type: "Crop"}}, Execute: ok},
		},
		Goals: []*agent.Goal{{Name: "harvested", OutputType: "Crop"}},
	}
	pl, err := NewGOAP().Plan(context.Background(), ag, agent.WorldState{})
	require.NoError(t, err)
	require.NotNil(t, pl)
	require.Equal(t, []string{"prepare", "harvest"}, pl.ActionNames())
	require.GreaterOrEqual(t, pl.Cost, 0.0)
}

func TestGOAPDeterministicTieBreak(t *testing.T) {
	// Two actions with identical cost and identical effects shape; the
	// lexicographically smaller name must win every time.
	ag := &agent.Agent{
		Name: "ties",
		Actions: []*agent.Action{
			{Name: "zeta", Outputs: []agent.Binding{{Type: "Out"}}, Execute: ok},
			{Name: "alpha", Outputs: []agent.Binding{{Type: "Out"}}, Execute: ok},
		},
		Goals: []*agent.Goal{{Name: "done", OutputType: "Out"}},
	}
	for i := 0; i < 20; i++ {
		pl, err := NewGOAP().Plan(context.Background(), ag, agent.WorldState{})
		require.NoError(t, err)
		require.NotNil(t, pl)
		require.Equal(t, []string{"alpha"}, pl.ActionNames())
	}
}

func TestGOAPNodeBudget(t *testing.T) {
	p := &GOAP{NodeBudget: 1}
	pl, err := p.Plan(context.Background(), pipelineAgent(), agent.WorldState{})
	require.NoError(t, err)
	require.Nil(t, pl, "budget too small to reach the goal")
}

func TestGOAPHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGOAP().Plan(ctx, pipelineAgent(), agent.WorldState{})
	require.ErrorIs(t, err, context.Canceled)
}

// Any plan the search produces is sound: simulated execution from the initial
// state satisfies each action's preconditions in turn and ends in a state
// where the goal holds.
func TestGOAPSoundnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	props := []string{
		agent.HasType("Data"),
		agent.HasType("Summary"),
		agent.HasRun("fetch"),
		agent.HasRun("summarize"),
	}

	properties.Property("plans simulate to the goal", prop.ForAll(
		func(mask int) bool {
			ws := make(agent.WorldState)
			for i, p := range props {
				if mask&(1<<i) != 0 {
					ws[p] = true
				}
			}
			ag := pipelineAgent()
			pl, err := NewGOAP().Plan(context.Background(), ag, ws)
			if err != nil {
				return false
			}
			if pl == nil {
				return true
			}
			state := ws.Clone()
			for _, a := range pl.Actions {
				if !state.Satisfies(a.Preconditions()) {
					return false
				}
				if !a.CanRerun && state[agent.HasRun(a.Name)] {
					return false
				}
				state = state.Apply(a.Effects())
			}
			goal := ag.Goals[0]
			return state.Satisfies(goal.Pre) && state[agent.HasType(goal.OutputType)]
		},
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
