package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	// SharedBudget is the subset of operations the cluster-aware limiter
	// needs to coordinate a tokens-per-minute budget across processes.
	SharedBudget interface {
		Get(ctx context.Context, key string) (string, bool)
		SetIfNotExists(ctx context.Context, key, value string) (bool, error)
		TestAndSet(ctx context.Context, key, test, value string) (string, error)
		Subscribe(ctx context.Context, key string) <-chan struct{}
	}

	redisBudget struct {
		client *redis.Client
	}
)

// casScript swaps the key's value only when it still holds the expected one,
// returning the value observed before the swap.
var casScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	redis.call("PUBLISH", KEYS[1] .. ":events", ARGV[2])
end
return cur
`)

// NewRedisBudget adapts a Redis client to the SharedBudget contract using a
// compare-and-set script and keyspace pub/sub for change notification.
func NewRedisBudget(client *redis.Client) SharedBudget {
	return &redisBudget{client: client}
}

func (b *redisBudget) Get(ctx context.Context, key string) (string, bool) {
	v, err := b.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (b *redisBudget) SetIfNotExists(ctx context.Context, key, value string) (bool, error) {
	return b.client.SetNX(ctx, key, value, 0).Result()
}

func (b *redisBudget) TestAndSet(ctx context.Context, key, test, value string) (string, error) {
	res, err := casScript.Run(ctx, b.client, []string{key}, test, value).Result()
	if err != nil {
		return "", err
	}
	prev, _ := res.(string)
	return prev, nil
}

func (b *redisBudget) Subscribe(ctx context.Context, key string) <-chan struct{} {
	sub := b.client.Subscribe(ctx, key+":events")
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

// NewSharedAdaptiveRateLimiter constructs a limiter whose budget is shared
// across processes through the given budget store. When the store or key is
// empty the limiter is process-local.
//
// Backoffs and probes adjust the shared value with compare-and-set; every
// process reconciles its local limiter when the shared value changes.
func NewSharedAdaptiveRateLimiter(ctx context.Context, budget SharedBudget, key string, initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if budget == nil || key == "" {
		return NewAdaptiveRateLimiter(initialTPM, maxTPM)
	}

	// Seed the shared budget if this process is first. A concurrent writer
	// may win; the read below reconciles.
	if _, ok := budget.Get(ctx, key); !ok {
		if _, err := budget.SetIfNotExists(ctx, key, strconv.Itoa(int(initialTPM))); err != nil {
			// Fall back to a process-local limiter so callers still make
			// progress.
			return NewAdaptiveRateLimiter(initialTPM, maxTPM)
		}
	}
	sharedTPM := initialTPM
	if cur, ok := budget.Get(ctx, key); ok {
		if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
			sharedTPM = v
		}
	}

	l := NewAdaptiveRateLimiter(sharedTPM, maxTPM)
	floor, ceiling, step := l.budget.floor, l.budget.ceiling, l.budget.step

	l.setSharedCallbacks(
		func(float64) { go sharedBackoff(context.Background(), budget, key, floor) },
		func(float64) { go sharedProbe(context.Background(), budget, key, step, ceiling) },
	)

	events := budget.Subscribe(ctx, key)
	go func() {
		for range events {
			cur, ok := budget.Get(ctx, key)
			if !ok {
				continue
			}
			if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
				l.adopt(v)
			}
		}
	}()
	return l
}

func sharedBackoff(ctx context.Context, budget SharedBudget, key string, floor float64) {
	adjustShared(ctx, budget, key, func(cur float64) (float64, bool) {
		next := cur * 0.5
		if next < floor {
			next = floor
		}
		return next, next != cur
	})
}

func sharedProbe(ctx context.Context, budget SharedBudget, key string, step, ceiling float64) {
	adjustShared(ctx, budget, key, func(cur float64) (float64, bool) {
		if cur >= ceiling {
			return cur, false
		}
		next := cur + step
		if next > ceiling {
			next = ceiling
		}
		return next, true
	})
}

func adjustShared(ctx context.Context, budget SharedBudget, key string, f func(cur float64) (float64, bool)) {
	const maxAttempts = 3

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		curStr, ok := budget.Get(ctx, key)
		if !ok {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 {
			return
		}
		next, changed := f(cur)
		if !changed {
			return
		}
		prev, err := budget.TestAndSet(ctx, key, curStr, strconv.Itoa(int(next)))
		if err != nil {
			return
		}
		if prev == curStr {
			return
		}
	}
}
