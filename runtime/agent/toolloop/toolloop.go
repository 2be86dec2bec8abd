// Package toolloop runs the iterative LLM turn at the heart of every
// model-driven action: call the model with the available tool schemas,
// execute the tool calls it emits, feed the results back, and repeat until
// the model answers without tools or a cap is hit.
package toolloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/hooks"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// DefaultMaxIterations bounds LLM turns per loop invocation when the caller
// does not configure a cap.
const DefaultMaxIterations = 20

type (
	// Loop configures one tool loop invocation. The zero value is not
	// usable: Client is required.
	Loop struct {
		// Client is the model client driving the loop.
		Client model.Client
		// Model selects the provider model. Empty uses the client default.
		Model string
		// Tools is the initial tool surface. The loop owns a copy; injection
		// strategies mutate the copy only.
		Tools []*tools.Tool
		// MaxIterations caps LLM turns. Zero means DefaultMaxIterations.
		MaxIterations int
		// Parallel configures concurrent execution of a single response's
		// tool calls. Nil runs sequentially.
		Parallel *ParallelOptions
		// Temperature is forwarded to the model.
		Temperature float32
		// ProcessID attributes published events. Empty disables publication.
		ProcessID string
		// Events receives tool call and LLM events when non-nil.
		Events hooks.Bus
		// Logger receives debug output. Nil means no logging.
		Logger telemetry.Logger
		// LogPrompts and LogResponses route transcript content to the debug
		// logger.
		LogPrompts   bool
		LogResponses bool
	}

	// ParallelOptions bounds the fan-out of a single response's tool calls.
	ParallelOptions struct {
		// MaxConcurrency bounds in-flight tool executions. Zero or negative
		// means unbounded.
		MaxConcurrency int
		// PerToolTimeout bounds each tool execution. Zero disables.
		PerToolTimeout time.Duration
		// BatchTimeout bounds the whole fan-out. Zero disables.
		BatchTimeout time.Duration
	}

	// Result is the outcome of a loop run.
	Result struct {
		// Messages is the full conversation including tool results.
		Messages []*model.Message
		// Text is the final assistant text, empty when the loop exited on a
		// replan.
		Text string
		// Output is the parsed final text when a parser was supplied.
		Output any
		// Usage accumulates model usage across all turns.
		Usage model.TokenUsage
		// Iterations counts the LLM turns taken.
		Iterations int
		// Replan is set when a tool requested a replan; the loop exited
		// early and Text/Output are empty.
		Replan *agent.ReplanRequestedError
		// DroppedReplans counts replan signals ignored under the first-wins
		// policy in parallel mode.
		DroppedReplans int
	}

	// OutputParser converts the final assistant text into the caller's
	// result value.
	OutputParser func(text string) (any, error)

	// ToolNotFoundError reports a model tool call naming a tool outside the
	// available surface.
	ToolNotFoundError struct {
		Name tools.Ident
	}

	// MaxIterationsExceededError reports that the loop hit its turn cap
	// without the model producing a final answer.
	MaxIterationsExceededError struct {
		Iterations int
	}
)

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("toolloop: tool %q not found", e.Name)
}

func (e *MaxIterationsExceededError) Error() string {
	return fmt.Sprintf("toolloop: no final answer after %d iterations", e.Iterations)
}

// Run drives the loop from the initial conversation until the model answers
// without tool calls, a tool requests a replan, or the iteration cap is hit.
// Control-flow signals from tools (awaitables, kills) propagate unchanged.
func (l *Loop) Run(ctx context.Context, initial []*model.Message, parser OutputParser) (*Result, error) {
	maxIter := l.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	available := make([]*tools.Tool, len(l.Tools))
	copy(available, l.Tools)

	res := &Result{Messages: append([]*model.Message(nil), initial...)}

	for res.Iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++

		resp, err := l.complete(ctx, available, res)
		if err != nil {
			return res, err
		}
		res.Usage.Add(resp.Usage)
		res.Messages = append(res.Messages, resp.Message)

		calls := resp.Message.ToolCalls
		if len(calls) == 0 {
			res.Text = resp.TextContent
			if parser != nil {
				out, err := parser(resp.TextContent)
				if err != nil {
					return res, agent.Classified(agent.ErrorKindValidation, err)
				}
				res.Output = out
			}
			return res, nil
		}

		var next []*tools.Tool
		if l.Parallel != nil {
			next, err = l.runParallel(ctx, calls, available, res)
		} else {
			next, err = l.runSequential(ctx, calls, available, res)
		}
		if err != nil {
			return res, err
		}
		if res.Replan != nil {
			return res, nil
		}
		available = next
	}
	return res, agent.Classified(agent.ErrorKindMaxIterations, &MaxIterationsExceededError{Iterations: res.Iterations})
}

func (l *Loop) complete(ctx context.Context, available []*tools.Tool, res *Result) (model.Response, error) {
	defs := make([]*tools.Definition, len(available))
	for i, t := range available {
		defs[i] = &t.Definition
	}
	l.publish(ctx, hooks.NewLLMRequestEvent(l.ProcessID, l.Model, len(res.Messages), len(defs)))
	if l.LogPrompts && l.Logger != nil && len(res.Messages) > 0 {
		last := res.Messages[len(res.Messages)-1]
		l.Logger.Debug(ctx, "model prompt", "messages", len(res.Messages), "last", last.Content)
	}
	start := time.Now()
	resp, err := l.Client.Complete(ctx, model.Request{
		Model:       l.Model,
		Messages:    res.Messages,
		Tools:       defs,
		Temperature: l.Temperature,
	})
	if err != nil {
		return model.Response{}, err
	}
	l.publish(ctx, hooks.NewLLMResponseEvent(l.ProcessID, l.Model, resp.StopReason,
		len(resp.Message.ToolCalls), resp.Usage, time.Since(start)))
	if l.LogResponses && l.Logger != nil {
		l.Logger.Debug(ctx, "model response", "tool_calls", len(resp.Message.ToolCalls), "text", resp.TextContent)
	}
	return resp, nil
}

// runSequential executes the calls one at a time in declared order. A replan
// signal ends the batch: the remaining calls receive synthetic error results
// so history keeps one result message per call.
func (l *Loop) runSequential(ctx context.Context, calls []model.ToolCall, available []*tools.Tool, res *Result) ([]*tools.Tool, error) {
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			return available, err
		}
		tool := findTool(available, call.Name)
		if tool == nil {
			return available, agent.Classified(agent.ErrorKindToolNotFound, &ToolNotFoundError{Name: call.Name})
		}

		content, err := l.invoke(ctx, tool, call)
		if err != nil {
			var replan *agent.ReplanRequestedError
			if errors.As(err, &replan) {
				res.Replan = replan
				res.Messages = append(res.Messages,
					model.ToolResultMessage(call.ID, call.Name, "Replan requested: "+replan.Reason))
				for _, skipped := range calls[i+1:] {
					res.Messages = append(res.Messages,
						model.ToolResultMessage(skipped.ID, skipped.Name, "Error: skipped, agent is replanning"))
				}
				return available, nil
			}
			return available, err
		}

		res.Messages = append(res.Messages, model.ToolResultMessage(call.ID, call.Name, content))
		available = applyInjection(available, tool)
	}
	return available, nil
}

// invoke validates the arguments, runs the tool, renders the result, and
// publishes the request/response event pair. Control-flow signals return as
// errors; ordinary tool errors render as "Error: ..." content.
func (l *Loop) invoke(ctx context.Context, tool *tools.Tool, call model.ToolCall) (string, error) {
	l.publish(ctx, hooks.NewToolCallRequestEvent(l.ProcessID, call.Name, call.ID, string(call.Arguments)))
	start := time.Now()

	content, isErr, err := executeTool(ctx, tool, call)
	if err != nil {
		return "", err
	}

	l.publish(ctx, hooks.NewToolCallResponseEvent(l.ProcessID, call.Name, call.ID, content, isErr, time.Since(start)))
	if l.Logger != nil && isErr {
		l.Logger.Debug(ctx, "tool returned error result", "tool", string(call.Name), "tool_call_id", call.ID)
	}
	return content, nil
}

// executeTool runs the tool and renders its result to message content.
// Control-flow signals propagate as errors; other call errors are rendered as
// error content so the model sees them.
func executeTool(ctx context.Context, tool *tools.Tool, call model.ToolCall) (content string, isErr bool, err error) {
	args := call.Arguments
	if verr := tool.ValidateArgs(args); verr != nil {
		return "Error: " + verr.Error(), true, nil
	}
	result, callErr := tool.Call(ctx, args)
	if callErr != nil {
		if agent.IsControlFlow(callErr) {
			return "", false, callErr
		}
		return "Error: " + callErr.Error(), true, nil
	}
	switch r := result.(type) {
	case *tools.Text:
		return r.Content, false, nil
	case *tools.WithArtifact:
		return r.Content, false, nil
	case *tools.Error:
		return "Error: " + r.Message, true, nil
	case nil:
		return "", false, nil
	default:
		return fmt.Sprintf("%v", result), false, nil
	}
}

// applyInjection expands the tool surface after an invocation: inner tools
// are added (deduplicated by name) and the outer tool is removed when it
// asks to be.
func applyInjection(available []*tools.Tool, invoked *tools.Tool) []*tools.Tool {
	if len(invoked.Inner) == 0 && !invoked.RemoveOnInvoke {
		return available
	}
	next := make([]*tools.Tool, 0, len(available)+len(invoked.Inner))
	for _, t := range available {
		if invoked.RemoveOnInvoke && t.Name() == invoked.Name() {
			continue
		}
		next = append(next, t)
	}
	for _, inner := range invoked.Inner {
		if findTool(next, inner.Name()) == nil {
			next = append(next, inner)
		}
	}
	return next
}

func findTool(available []*tools.Tool, name tools.Ident) *tools.Tool {
	for _, t := range available {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (l *Loop) publish(ctx context.Context, event hooks.Event) {
	if l.Events == nil || l.ProcessID == "" {
		return
	}
	if err := l.Events.Publish(ctx, event); err != nil && l.Logger != nil {
		l.Logger.Warn(ctx, "event publication failed", "event", string(event.Type()), "error", err.Error())
	}
}
