package toolloop

import (
	"context"
	"errors"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/hooks"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// toolOutcome is the collected result of one concurrent tool execution,
// indexed by declaration position so the append phase can restore order.
type toolOutcome struct {
	index   int
	content string
	isErr   bool
	err     error
}

// runParallel fans the calls out on a bounded pool, collects every outcome,
// then appends result messages in declared order. Timeouts become synthetic
// error results and the batch continues. The first replan by declaration
// order wins; later replans are counted in DroppedReplans. Awaitable and
// kill signals take precedence and abort the batch.
func (l *Loop) runParallel(ctx context.Context, calls []model.ToolCall, available []*tools.Tool, res *Result) ([]*tools.Tool, error) {
	opts := l.Parallel

	for _, call := range calls {
		if findTool(available, call.Name) == nil {
			return available, agent.Classified(agent.ErrorKindToolNotFound, &ToolNotFoundError{Name: call.Name})
		}
	}

	batchCtx := ctx
	var cancel context.CancelFunc
	if opts.BatchTimeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, opts.BatchTimeout)
		defer cancel()
	}

	var sem chan struct{}
	if opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, opts.MaxConcurrency)
	}

	outcomes := make(chan toolOutcome, len(calls))
	for i, call := range calls {
		go func(i int, call model.ToolCall) {
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-batchCtx.Done():
					outcomes <- toolOutcome{index: i, content: "Error: Tool execution timed out", isErr: true}
					return
				}
			}

			callCtx := batchCtx
			var callCancel context.CancelFunc
			if opts.PerToolTimeout > 0 {
				callCtx, callCancel = context.WithTimeout(batchCtx, opts.PerToolTimeout)
				defer callCancel()
			}

			tool := findTool(available, call.Name)
			done := make(chan toolOutcome, 1)
			go func() {
				content, isErr, err := executeTool(callCtx, tool, call)
				done <- toolOutcome{index: i, content: content, isErr: isErr, err: err}
			}()
			select {
			case out := <-done:
				outcomes <- out
			case <-callCtx.Done():
				outcomes <- toolOutcome{index: i, content: "Error: Tool execution timed out", isErr: true}
			}
		}(i, call)
	}

	collected := make([]toolOutcome, len(calls))
	for range calls {
		out := <-outcomes
		collected[out.index] = out
	}

	// Awaitables and kills abort the whole batch; results are discarded
	// because the action re-runs after resumption.
	for _, out := range collected {
		if out.err == nil {
			continue
		}
		var replan *agent.ReplanRequestedError
		if !errors.As(out.err, &replan) {
			return available, out.err
		}
	}

	// First replan by declaration order wins. The winner's blackboard update
	// is the one the executor applies; the rest are dropped.
	var lastInvoked *tools.Tool
	for i, out := range collected {
		call := calls[i]
		content := out.content
		if out.err != nil {
			var replan *agent.ReplanRequestedError
			errors.As(out.err, &replan)
			if res.Replan == nil {
				res.Replan = replan
				content = "Replan requested: " + replan.Reason
			} else {
				res.DroppedReplans++
				content = "Error: replan request dropped, another tool already requested one"
			}
		}
		res.Messages = append(res.Messages, model.ToolResultMessage(call.ID, call.Name, content))
		l.publish(ctx, hooks.NewToolCallResponseEvent(l.ProcessID, call.Name, call.ID, content, out.isErr, 0))
		if out.err == nil && !out.isErr {
			lastInvoked = findTool(available, call.Name)
		}
	}

	// Injection is applied once, from the last successful invocation.
	if res.Replan == nil && lastInvoked != nil {
		available = applyInjection(available, lastInvoked)
	}
	return available, nil
}
