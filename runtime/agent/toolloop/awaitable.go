package toolloop

import (
	"context"
	"encoding/json"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// WithConfirmation wraps the tool so every invocation requires approval. On
// first call it raises an awaitable and the process suspends; on resumption
// the decorator reads the approval condition from the blackboard, consumes
// it, and either runs the tool or returns a denial result.
func WithConfirmation(tool *tools.Tool, bb *blackboard.Blackboard) *tools.Tool {
	return withConditionalConfirmation(tool, bb, nil)
}

// WithConditionalConfirmation wraps the tool so invocations require approval
// only when needsConfirmation returns true for the arguments.
func WithConditionalConfirmation(tool *tools.Tool, bb *blackboard.Blackboard, needsConfirmation func(args json.RawMessage) bool) *tools.Tool {
	return withConditionalConfirmation(tool, bb, needsConfirmation)
}

func withConditionalConfirmation(tool *tools.Tool, bb *blackboard.Blackboard, needsConfirmation func(args json.RawMessage) bool) *tools.Tool {
	condition := "approved:" + string(tool.Name())
	wrapped := cloneTool(tool)
	wrapped.Call = func(ctx context.Context, args json.RawMessage) (tools.Result, error) {
		if needsConfirmation != nil && !needsConfirmation(args) {
			return tool.Call(ctx, args)
		}
		if approved, ok := bb.GetCondition(condition); ok {
			// Consume the decision so the next invocation asks again.
			bb.SetCondition(condition, false)
			if !approved {
				return &tools.Error{Message: "invocation rejected by user"}, nil
			}
			return tool.Call(ctx, args)
		}
		aw := await.NewConfirmation(condition, map[string]any{
			"tool":        string(tool.Name()),
			"description": tool.Definition.Description,
			"arguments":   json.RawMessage(args),
		})
		return nil, &agent.AwaitableError{Awaitable: aw}
	}
	return wrapped
}

// WithTypedValue wraps the tool so it requires a value of the named domain
// type on the blackboard before running. Missing values raise a type-request
// awaitable; after the response binds the value, the re-invoked tool finds
// it and proceeds.
func WithTypedValue(tool *tools.Tool, bb *blackboard.Blackboard, typeName, bindName string) *tools.Tool {
	if bindName == "" {
		bindName = typeName
	}
	wrapped := cloneTool(tool)
	wrapped.Call = func(ctx context.Context, args json.RawMessage) (tools.Result, error) {
		if bb.Last(typeName) != nil {
			return tool.Call(ctx, args)
		}
		aw := await.NewTypeRequest(typeName, bindName, map[string]any{
			"tool": string(tool.Name()),
		})
		return nil, &agent.AwaitableError{Awaitable: aw}
	}
	return wrapped
}

// cloneTool copies the public surface of a tool so decorators never share
// the original's cached schema state.
func cloneTool(t *tools.Tool) *tools.Tool {
	return &tools.Tool{
		Definition:     t.Definition,
		Groups:         t.Groups,
		Inner:          t.Inner,
		RemoveOnInvoke: t.RemoveOnInvoke,
		Call:           t.Call,
	}
}
