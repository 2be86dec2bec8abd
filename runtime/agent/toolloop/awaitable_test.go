package toolloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/domain"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

func TestWithConfirmationRaisesAwaitableOnFirstCall(t *testing.T) {
	bb := blackboard.New(nil)
	guarded := WithConfirmation(staticTool("send", "sent"), bb)

	_, err := guarded.Call(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	var ae *agent.AwaitableError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, await.KindConfirmation, ae.Awaitable.Kind)
	require.Equal(t, "send", ae.Awaitable.Payload["tool"])
}

func TestWithConfirmationApprovedRunsAndConsumes(t *testing.T) {
	bb := blackboard.New(nil)
	guarded := WithConfirmation(staticTool("send", "sent"), bb)
	bb.SetCondition("approved:send", true)

	result, err := guarded.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, "sent", result.(*tools.Text).Content)

	// The approval was consumed: the next call must ask again... except the
	// consumed condition now reads false, which is a rejection. Clear it to
	// model a fresh invocation cycle.
	v, ok := bb.GetCondition("approved:send")
	require.True(t, ok)
	require.False(t, v, "decision consumed on read")
}

func TestWithConfirmationRejected(t *testing.T) {
	bb := blackboard.New(nil)
	guarded := WithConfirmation(staticTool("send", "sent"), bb)
	bb.SetCondition("approved:send", false)

	result, err := guarded.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, "invocation rejected by user", result.(*tools.Error).Message)
}

func TestWithConditionalConfirmation(t *testing.T) {
	bb := blackboard.New(nil)
	needsConfirmation := func(args json.RawMessage) bool {
		var in struct {
			Amount float64 `json:"amount"`
		}
		_ = json.Unmarshal(args, &in)
		return in.Amount > 100
	}
	guarded := WithConditionalConfirmation(staticTool("pay", "paid"), bb, needsConfirmation)

	// Small amounts pass straight through.
	result, err := guarded.Call(context.Background(), json.RawMessage(`{"amount": 5}`))
	require.NoError(t, err)
	require.Equal(t, "paid", result.(*tools.Text).Content)

	// Large amounts suspend.
	_, err = guarded.Call(context.Background(), json.RawMessage(`{"amount": 5000}`))
	var ae *agent.AwaitableError
	require.ErrorAs(t, err, &ae)
}

type approval struct {
	By string `json:"by"`
}

func TestWithTypedValue(t *testing.T) {
	types := domain.NewRegistry()
	types.MustRegister(domain.Reflected("Approval", approval{},
		domain.WithProperty(domain.Property{Name: "by", Kind: domain.KindScalar, Type: "string"}),
	))
	bb := blackboard.New(types)
	guarded := WithTypedValue(staticTool("publish", "published"), bb, "Approval", "signoff")

	_, err := guarded.Call(context.Background(), json.RawMessage(`{}`))
	var ae *agent.AwaitableError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, await.KindTypeRequest, ae.Awaitable.Kind)

	// Respond as the executor would, then retry.
	_, err = ae.Awaitable.Respond(approval{By: "ops"}, bb)
	require.NoError(t, err)

	result, err := guarded.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, "published", result.(*tools.Text).Content)
}

func TestDecoratorsDoNotMutateOriginal(t *testing.T) {
	bb := blackboard.New(nil)
	original := staticTool("send", "sent")
	guarded := WithConfirmation(original, bb)
	require.NotSame(t, original, guarded)

	// The original stays unguarded.
	result, err := original.Call(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, "sent", result.(*tools.Text).Content)
}
