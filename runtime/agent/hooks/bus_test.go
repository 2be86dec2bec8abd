package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []string
	sub := func(name string) Subscriber {
		return SubscriberFunc(func(context.Context, Event) error {
			order = append(order, name)
			return nil
		})
	}
	_, err := b.Register(sub("first"))
	require.NoError(t, err)
	_, err = b.Register(sub("second"))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewProcessCreatedEvent("p1", "agent", "")))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestBusStopsAtFirstSubscriberError(t *testing.T) {
	b := NewBus()
	boom := errors.New("boom")
	_, err := b.Register(SubscriberFunc(func(context.Context, Event) error { return boom }))
	require.NoError(t, err)
	reached := false
	_, err = b.Register(SubscriberFunc(func(context.Context, Event) error {
		reached = true
		return nil
	}))
	require.NoError(t, err)

	err = b.Publish(context.Background(), NewProcessCreatedEvent("p1", "agent", ""))
	require.ErrorIs(t, err, boom)
	require.False(t, reached)
}

func TestBusRejectsNilSubscriber(t *testing.T) {
	b := NewBus()
	_, err := b.Register(nil)
	require.Error(t, err)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	b := NewBus()
	count := 0
	sub, err := b.Register(SubscriberFunc(func(context.Context, Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewProcessCreatedEvent("p1", "agent", "")))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")
	require.NoError(t, b.Publish(context.Background(), NewProcessCreatedEvent("p1", "agent", "")))
	require.Equal(t, 1, count)
}

func TestEventMetadata(t *testing.T) {
	before := time.Now().UTC()
	e := NewActionCompletedEvent("p1", "fetch", "COMPLETED", "", telemetry.ActionTelemetry{Attempts: 1})
	require.Equal(t, "p1", e.ProcessID())
	require.Equal(t, ActionCompleted, e.Type())
	require.False(t, e.Time().Before(before))
	require.Equal(t, "fetch", e.Action)
}

func TestLLMResponseEventCarriesUsage(t *testing.T) {
	usage := model.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	e := NewLLMResponseEvent("p1", "claude", "tool_calls", 2, usage, 250*time.Millisecond)
	require.Equal(t, LLMResponse, e.Type())
	require.Equal(t, usage, e.Usage)
	require.Equal(t, 2, e.ToolCalls)
}
