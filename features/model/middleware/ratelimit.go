// Package middleware provides reusable model.Client middlewares such as
// adaptive rate limiting.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/arcline-ai/arcline/runtime/agent/model"
)

const (
	// defaultTPM is the tokens-per-minute budget used when callers pass none.
	defaultTPM = 60000
	// charsPerToken converts transcript characters to an approximate token
	// count. Three characters per token is close enough for budgeting across
	// common tokenizers.
	charsPerToken = 3
	// requestOverheadTokens covers system prompts and provider framing that
	// never appear in the transcript.
	requestOverheadTokens = 500
	// perToolTokens is the schema cost of one declared tool definition.
	perToolTokens = 40
)

type (
	// aimdBudget tracks an additive-increase, multiplicative-decrease
	// tokens-per-minute budget clamped to [floor, ceiling]. Callers hold the
	// limiter mutex around every method.
	aimdBudget struct {
		cur     float64
		floor   float64
		ceiling float64
		step    float64
	}

	// AdaptiveRateLimiter throttles a model.Client to a tokens-per-minute
	// budget. Each request reserves its estimated token cost from a token
	// bucket; provider rate limiting halves the budget and successful calls
	// grow it back one step at a time.
	//
	// The limiter is process-local by default; pass a SharedBudget to
	// coordinate the budget across processes.
	AdaptiveRateLimiter struct {
		mu     sync.Mutex
		bucket *rate.Limiter
		budget aimdBudget

		onCut  func(newTPM float64)
		onGrow func(newTPM float64)
	}

	rateLimitedClient struct {
		next    model.Client
		limiter *AdaptiveRateLimiter
	}
)

func newAIMDBudget(initialTPM, maxTPM float64) aimdBudget {
	if initialTPM <= 0 {
		initialTPM = defaultTPM
	}
	if maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	floor := initialTPM * 0.1
	if floor < 1 {
		floor = 1
	}
	step := initialTPM * 0.05
	if step < 1 {
		step = 1
	}
	return aimdBudget{cur: initialTPM, floor: floor, ceiling: maxTPM, step: step}
}

// halve applies the multiplicative decrease. It reports whether the budget
// moved.
func (b *aimdBudget) halve() bool {
	return b.set(b.cur * 0.5)
}

// grow applies one additive increase step. It reports whether the budget
// moved.
func (b *aimdBudget) grow() bool {
	return b.set(b.cur + b.step)
}

// set clamps tpm to [floor, ceiling] and reports whether the budget moved.
func (b *aimdBudget) set(tpm float64) bool {
	if tpm < b.floor {
		tpm = b.floor
	}
	if tpm > b.ceiling {
		tpm = b.ceiling
	}
	if tpm == b.cur {
		return false
	}
	b.cur = tpm
	return true
}

// NewAdaptiveRateLimiter constructs a limiter with an initial
// tokens-per-minute budget and an upper bound. A maxTPM at or below zero, or
// below initialTPM, is raised to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	budget := newAIMDBudget(initialTPM, maxTPM)
	return &AdaptiveRateLimiter{
		bucket: rate.NewLimiter(rate.Limit(budget.cur/60.0), int(budget.cur)),
		budget: budget,
	}
}

// Middleware returns a model.Client middleware enforcing the adaptive
// tokens-per-minute limit for both Complete and Stream calls.
func (l *AdaptiveRateLimiter) Middleware() func(model.Client) model.Client {
	return func(next model.Client) model.Client {
		if next == nil {
			return nil
		}
		return &rateLimitedClient{next: next, limiter: l}
	}
}

// Complete reserves the request's estimated cost before delegating.
func (c *rateLimitedClient) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := c.limiter.reserve(ctx, req); err != nil {
		return model.Response{}, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.record(err)
	return resp, err
}

// Stream reserves the request's estimated cost before delegating.
func (c *rateLimitedClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	if err := c.limiter.reserve(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.record(err)
	return stream, err
}

// reserve blocks until the bucket holds the request's estimated tokens or the
// context ends.
func (l *AdaptiveRateLimiter) reserve(ctx context.Context, req model.Request) error {
	return l.bucket.WaitN(ctx, estimateTokens(req))
}

// record adjusts the budget from a call outcome. Only the provider's rate
// limiting signal cuts the budget; other failures are the caller's problem.
func (l *AdaptiveRateLimiter) record(err error) {
	switch {
	case err == nil:
		l.grow()
	case errors.Is(err, model.ErrRateLimited):
		l.cut()
	}
}

func (l *AdaptiveRateLimiter) cut() {
	l.mu.Lock()
	if !l.budget.halve() {
		l.mu.Unlock()
		return
	}
	tpm := l.budget.cur
	cb := l.onCut
	l.retune(tpm)
	l.mu.Unlock()

	if cb != nil {
		cb(tpm)
	}
}

func (l *AdaptiveRateLimiter) grow() {
	l.mu.Lock()
	if !l.budget.grow() {
		l.mu.Unlock()
		return
	}
	tpm := l.budget.cur
	cb := l.onGrow
	l.retune(tpm)
	l.mu.Unlock()

	if cb != nil {
		cb(tpm)
	}
}

// adopt replaces the budget with a value decided elsewhere, clamped to the
// configured range. The shared-budget reconciler calls it when another
// process moves the cluster budget.
func (l *AdaptiveRateLimiter) adopt(tpm float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budget.set(tpm) {
		l.retune(l.budget.cur)
	}
}

// retune re-derives the bucket from the budget. Callers hold l.mu.
func (l *AdaptiveRateLimiter) retune(tpm float64) {
	l.bucket.SetLimit(rate.Limit(tpm / 60.0))
	l.bucket.SetBurst(int(tpm))
}

func (l *AdaptiveRateLimiter) setSharedCallbacks(onCut, onGrow func(newTPM float64)) {
	l.mu.Lock()
	l.onCut = onCut
	l.onGrow = onGrow
	l.mu.Unlock()
}

// estimateTokens prices a request for the bucket: transcript characters at a
// fixed chars-per-token ratio, a flat overhead for framing, and a schema cost
// per declared tool.
func estimateTokens(req model.Request) int {
	chars := 0
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			chars += len(tc.Arguments)
		}
	}
	return chars/charsPerToken + len(req.Tools)*perToolTokens + requestOverheadTokens
}
