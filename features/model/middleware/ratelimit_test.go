package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

func currentTPM(l *AdaptiveRateLimiter) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budget.cur
}

func TestNewAdaptiveRateLimiterDefaults(t *testing.T) {
	l := NewAdaptiveRateLimiter(0, 0)
	require.Equal(t, 60000.0, currentTPM(l))

	l = NewAdaptiveRateLimiter(10000, 5000)
	require.Equal(t, 10000.0, l.budget.ceiling, "max below initial clamps to initial")

	l = NewAdaptiveRateLimiter(10000, 40000)
	require.Equal(t, 1000.0, l.budget.floor)
	require.Equal(t, 500.0, l.budget.step)
}

func TestCutHalvesAndClampsAtFloor(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 40000)

	l.cut()
	require.Equal(t, 5000.0, currentTPM(l))
	l.cut()
	require.Equal(t, 2500.0, currentTPM(l))

	for i := 0; i < 10; i++ {
		l.cut()
	}
	require.Equal(t, l.budget.floor, currentTPM(l), "budget never drops below the floor")
}

func TestGrowCreepsUpAndClampsAtCeiling(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 11000)

	l.grow()
	require.Equal(t, 10500.0, currentTPM(l))
	l.grow()
	require.Equal(t, 11000.0, currentTPM(l))
	l.grow()
	require.Equal(t, 11000.0, currentTPM(l), "budget never exceeds the ceiling")
}

func TestRecordClassifiesErrors(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 40000)

	l.record(model.ErrRateLimited)
	require.Equal(t, 5000.0, currentTPM(l))

	l.record(errors.New("unrelated"))
	require.Equal(t, 5000.0, currentTPM(l), "only rate limiting cuts the budget")

	l.record(nil)
	require.Equal(t, 5500.0, currentTPM(l), "success grows the budget back")
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 500, estimateTokens(model.Request{}), "empty requests get the floor estimate")

	req := model.Request{Messages: []*model.Message{
		model.UserMessage(strings.Repeat("x", 600)),
		nil,
	}}
	require.Equal(t, 700, estimateTokens(req))

	req.Messages = append(req.Messages, &model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{Arguments: []byte(strings.Repeat("y", 300))}},
	})
	require.Equal(t, 800, estimateTokens(req), "tool call arguments count toward the estimate")

	req.Tools = []*tools.Definition{{Name: "lookup"}, {Name: "send"}}
	require.Equal(t, 880, estimateTokens(req), "declared tool schemas count toward the estimate")
}

type limitedStub struct {
	err   error
	calls int
}

func (s *limitedStub) Complete(context.Context, model.Request) (model.Response, error) {
	s.calls++
	return model.Response{TextContent: "ok"}, s.err
}

func (s *limitedStub) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func TestMiddlewareWrapsClient(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 40000)
	stub := &limitedStub{}
	client := l.Middleware()(stub)

	resp, err := client.Complete(context.Background(), model.Request{Messages: []*model.Message{model.UserMessage("hi")}})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.TextContent)
	require.Equal(t, 1, stub.calls)
	require.Equal(t, 10500.0, currentTPM(l), "successful calls probe the budget up")

	stub.err = model.ErrRateLimited
	_, err = client.Complete(context.Background(), model.Request{})
	require.ErrorIs(t, err, model.ErrRateLimited)
	require.Equal(t, 5250.0, currentTPM(l), "provider rate limiting halves the budget")
}

func TestMiddlewareRespectsContext(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 40000)
	stub := &limitedStub{}
	client := l.Middleware()(stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, model.Request{})
	require.Error(t, err)
	require.Zero(t, stub.calls, "cancelled requests never reach the provider")
}

func TestAdoptClamps(t *testing.T) {
	l := NewAdaptiveRateLimiter(10000, 40000)

	l.adopt(25000)
	require.Equal(t, 25000.0, currentTPM(l))
	l.adopt(100)
	require.Equal(t, l.budget.floor, currentTPM(l))
	l.adopt(90000)
	require.Equal(t, l.budget.ceiling, currentTPM(l))
}

type fakeBudget struct {
	mu     sync.Mutex
	data   map[string]string
	events chan struct{}
}

func newFakeBudget() *fakeBudget {
	return &fakeBudget{data: make(map[string]string), events: make(chan struct{}, 8)}
}

func (b *fakeBudget) Get(_ context.Context, key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}

func (b *fakeBudget) SetIfNotExists(_ context.Context, key, value string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok {
		return false, nil
	}
	b.data[key] = value
	return true, nil
}

func (b *fakeBudget) TestAndSet(_ context.Context, key, test, value string) (string, error) {
	b.mu.Lock()
	prev := b.data[key]
	if prev == test {
		b.data[key] = value
	}
	b.mu.Unlock()
	if prev == test {
		select {
		case b.events <- struct{}{}:
		default:
		}
	}
	return prev, nil
}

func (b *fakeBudget) Subscribe(context.Context, string) <-chan struct{} {
	return b.events
}

func TestSharedLimiterFallsBackWithoutBudget(t *testing.T) {
	l := NewSharedAdaptiveRateLimiter(context.Background(), nil, "budget", 10000, 40000)
	require.Equal(t, 10000.0, currentTPM(l))
}

func TestSharedLimiterSeedsAndAdoptsBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := newFakeBudget()
	_ = NewSharedAdaptiveRateLimiter(ctx, fb, "budget", 10000, 40000)
	v, ok := fb.Get(ctx, "budget")
	require.True(t, ok)
	require.Equal(t, "10000", v, "first process seeds the shared value")

	// A second process adopts the existing value rather than its own initial.
	fb2 := newFakeBudget()
	fb2.data["budget"] = "20000"
	l2 := NewSharedAdaptiveRateLimiter(ctx, fb2, "budget", 10000, 40000)
	require.Equal(t, 20000.0, currentTPM(l2))
}

func TestSharedLimiterPublishesBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := newFakeBudget()
	l := NewSharedAdaptiveRateLimiter(ctx, fb, "budget", 10000, 40000)

	l.cut()
	require.Eventually(t, func() bool {
		v, _ := fb.Get(ctx, "budget")
		return v == "5000"
	}, time.Second, 5*time.Millisecond, "the halved budget reaches the shared store")
}

func TestSharedLimiterReconcilesOnEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := newFakeBudget()
	l := NewSharedAdaptiveRateLimiter(ctx, fb, "budget", 10000, 40000)

	// Another process halves the shared budget.
	fb.mu.Lock()
	fb.data["budget"] = "5000"
	fb.mu.Unlock()
	fb.events <- struct{}{}

	require.Eventually(t, func() bool {
		return currentTPM(l) == 5000
	}, time.Second, 5*time.Millisecond)
}
