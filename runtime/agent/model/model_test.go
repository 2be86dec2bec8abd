package model

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	id string
}

func (c *stubClient) Complete(context.Context, Request) (Response, error) {
	return Response{TextContent: c.id}, nil
}

func (c *stubClient) Stream(context.Context, Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

func TestRegistryFirstClientIsDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("claude", "anthropic", &stubClient{id: "claude"}))
	require.NoError(t, r.Register("gpt", "openai", &stubClient{id: "gpt"}))

	c, ok := r.Client("")
	require.True(t, ok)
	require.Equal(t, "claude", c.(*stubClient).id)

	require.NoError(t, r.SetDefault("gpt"))
	c, _ = r.Client("")
	require.Equal(t, "gpt", c.(*stubClient).id)

	require.Error(t, r.SetDefault("missing"))
	require.Error(t, r.Register("claude", "anthropic", &stubClient{}), "duplicate id")
	require.Error(t, r.Register("", "anthropic", &stubClient{}))
}

func TestRegistrySelect(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("claude", "anthropic", &stubClient{id: "claude"}))
	require.NoError(t, r.Register("gpt", "openai", &stubClient{id: "gpt"}))

	c, err := r.Select(SelectionCriteria{Provider: "openai"})
	require.NoError(t, err)
	require.Equal(t, "gpt", c.(*stubClient).id)

	c, err = r.Select(SelectionCriteria{})
	require.NoError(t, err)
	require.Equal(t, "claude", c.(*stubClient).id)

	_, err = r.Select(SelectionCriteria{Provider: "mistral"})
	require.Error(t, err)
}

func TestMessageConstructors(t *testing.T) {
	require.Equal(t, RoleSystem, SystemMessage("s").Role)
	require.Equal(t, RoleUser, UserMessage("u").Role)
	require.Equal(t, RoleAssistant, AssistantMessage("a").Role)

	m := ToolResultMessage("call_1", "fetch", "ok")
	require.Equal(t, RoleTool, m.Role)
	require.Equal(t, "call_1", m.ToolCallID)
	require.Equal(t, "ok", m.Content)
}

// Accumulated usage never decreases, whatever deltas arrive.
func TestTokenUsageMonotoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("Add never decreases any counter", prop.ForAll(
		func(deltas []int) bool {
			var u TokenUsage
			prev := u
			for _, d := range deltas {
				u.Add(TokenUsage{InputTokens: d, OutputTokens: -d, TotalTokens: d})
				if u.InputTokens < prev.InputTokens ||
					u.OutputTokens < prev.OutputTokens ||
					u.TotalTokens < prev.TotalTokens {
					return false
				}
				prev = u
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}
