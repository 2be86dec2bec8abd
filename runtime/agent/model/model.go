// Package model provides the provider-agnostic LLM abstraction the planner
// and tool loop invoke. It normalizes chat completion requests and responses
// (messages, tool schemas, tool calls, usage) so callers never couple to a
// specific SDK; implementations under features/model translate these types
// into provider formats.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// Message roles. Providers map these onto their wire formats.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type (
	// Client is the contract for invoking LLM calls. Implementations wrap
	// provider SDKs and must be safe for concurrent use across processes.
	Client interface {
		// Complete sends a chat completion request and returns the generated
		// response. Implementations handle transport retries and rate
		// limiting according to provider best practices.
		Complete(ctx context.Context, req Request) (Response, error)

		// Stream sends a chat completion request and returns a Streamer
		// yielding incremental chunks. Providers without streaming support
		// return ErrStreamingUnsupported.
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Successive Recv calls
	// return chunks until io.EOF. Close releases underlying resources.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
		// Metadata returns provider-specific stream metadata (provider,
		// model, request IDs). Contents are optional and provider-defined.
		Metadata() map[string]any
	}

	// Request captures the normalized parameters of a model invocation.
	Request struct {
		// Model is the provider-specific model identifier. Empty selects the
		// client's configured default.
		Model string
		// Messages is the ordered conversation history including system
		// prompts, user input, assistant turns and tool results.
		Messages []*Message
		// Tools describes the tool schemas exposed for function calling.
		Tools []*tools.Definition
		// Temperature controls sampling. Zero means provider default.
		Temperature float32
		// MaxTokens caps completion tokens. Zero means provider default.
		MaxTokens int
		// Thinking configures provider thinking modes. Nil disables.
		Thinking *ThinkingOptions
	}

	// Response wraps the generated content and tool call suggestions.
	Response struct {
		// Message is the assistant message produced by the model, including
		// any tool calls it requested.
		Message *Message
		// TextContent is the concatenated text of the assistant message,
		// provided for convenience.
		TextContent string
		// Thinking carries the reasoning blocks emitted by thinking-enabled
		// models, in emission order. Empty otherwise.
		Thinking []string
		// Usage reports token usage when the provider supplies it.
		Usage TokenUsage
		// StopReason explains why generation stopped. Provider-specific;
		// common values: "stop_sequence", "max_tokens", "tool_calls".
		StopReason string
	}

	// Message mirrors one chat message. Assistant messages may carry tool
	// calls; tool messages carry the result for a specific tool call.
	Message struct {
		// Role is one of the Role constants.
		Role string
		// Content is the message text. May be empty for pure tool-call
		// messages.
		Content string
		// ToolCalls lists tool invocations requested by an assistant message.
		ToolCalls []ToolCall
		// ToolCallID correlates a tool-role message with the assistant tool
		// call it answers.
		ToolCallID string
		// ToolName names the tool that produced a tool-role message.
		ToolName tools.Ident
		// Meta carries provider-specific metadata, preserved for debugging.
		Meta map[string]any
	}

	// ToolCall is a single tool invocation requested by the model.
	ToolCall struct {
		// ID is the provider-assigned identifier correlating the call with
		// its result message.
		ID string
		// Name identifies the requested tool.
		Name tools.Ident
		// Arguments is the raw JSON argument payload.
		Arguments json.RawMessage
	}

	// Chunk is a streaming event. Type indicates which field is populated.
	Chunk struct {
		// Type is one of the ChunkType constants.
		Type string
		// Text holds an assistant text delta when Type is ChunkTypeText.
		Text string
		// Thinking holds a reasoning delta when Type is ChunkTypeThinking.
		Thinking string
		// ToolCall holds the requested invocation when Type is
		// ChunkTypeToolCall.
		ToolCall *ToolCall
		// UsageDelta reports incremental usage when Type is ChunkTypeUsage.
		UsageDelta *TokenUsage
		// StopReason explains termination when Type is ChunkTypeStop.
		StopReason string
	}

	// ThinkingOptions toggles provider thinking modes for models that support
	// reflective chains.
	ThinkingOptions struct {
		// Enable turns thinking on. False uses the provider default.
		Enable bool
		// BudgetTokens caps thinking output. Zero means provider default.
		BudgetTokens int
	}

	// TokenUsage records token counts and attributed cost for a model call.
	// All fields are zero when the provider does not report usage.
	TokenUsage struct {
		// InputTokens counts tokens consumed by the prompt and history.
		InputTokens int
		// OutputTokens counts tokens produced in this completion.
		OutputTokens int
		// TotalTokens is the aggregate; prefer it over summing when the
		// provider computes overhead differently.
		TotalTokens int
		// CostUSD is the provider-attributed cost when known, used by early
		// termination budget policies.
		CostUSD float64
	}

	// SelectionCriteria guides model selection when multiple clients are
	// registered. Providers match on their own identifiers.
	SelectionCriteria struct {
		// Provider restricts selection to a provider family ("anthropic",
		// "openai"). Empty matches any.
		Provider string
		// Model requests a specific model identifier. Empty matches any.
		Model string
	}
)

// Chunk type constants.
const (
	ChunkTypeText     = "text"
	ChunkTypeThinking = "thinking"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeUsage    = "usage"
	ChunkTypeStop     = "stop"
)

// ErrStreamingUnsupported indicates the provider does not implement streaming
// for the requested model or parameters.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited wraps provider rate limiting errors so middlewares can react
// uniformly. Adapters wrap 429-class failures with this sentinel.
var ErrRateLimited = errors.New("model: rate limited")

// Add accumulates other into u. Usage is additive and monotone: negative
// deltas are clamped to zero.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += max(0, other.InputTokens)
	u.OutputTokens += max(0, other.OutputTokens)
	u.TotalTokens += max(0, other.TotalTokens)
	if other.CostUSD > 0 {
		u.CostUSD += other.CostUSD
	}
}

// SystemMessage returns a system-role message with the given content.
func SystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user-role message with the given content.
func UserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant-role message with the given content.
func AssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage returns a tool-role message answering the identified tool
// call.
func ToolResultMessage(toolCallID string, name tools.Ident, content string) *Message {
	return &Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, ToolName: name}
}
