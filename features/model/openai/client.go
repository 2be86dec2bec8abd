// Package openai provides a model.Client backed by the OpenAI Chat
// Completions API. It translates normalized requests into ChatCompletion
// calls using github.com/openai/openai-go and maps responses back to the
// generic structures.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter. It
// is satisfied by client.Chat.Completions so tests can pass a mock.
type ChatClient interface {
	New(ctx context.Context, params sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed model client from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	sc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &sc.Chat.Completions, DefaultModel: defaultModel})
}

// Complete renders a chat completion using the configured OpenAI client.
// Assistant tool-call turns are re-encoded as text; tool results round-trip
// through tool messages keyed by call id.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if len(req.Messages) == 0 {
		return model.Response{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			messages = append(messages, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			content := m.Content
			for _, tc := range m.ToolCalls {
				content += fmt.Sprintf("\n[called %s: %s]", tc.Name, string(tc.Arguments))
			}
			messages = append(messages, sdk.AssistantMessage(content))
		case model.RoleTool:
			messages = append(messages, sdk.ToolMessage(m.Content, m.ToolCallID))
		default:
			return model.Response{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if ts := encodeTools(req.Tools); len(ts) > 0 {
		params.Tools = ts
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

// Stream reports that streaming is not supported by this adapter. Callers
// fall back to Complete.
func (c *Client) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func encodeTools(defs []*tools.Definition) []sdk.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{Name: string(def.Name)}
		if def.Description != "" {
			fn.Description = sdk.String(def.Description)
		}
		if def.InputSchema != nil {
			fn.Parameters = shared.FunctionParameters(def.InputSchema)
		}
		out = append(out, sdk.ChatCompletionFunctionTool(fn))
	}
	return out
}

func translateResponse(resp *sdk.ChatCompletion) model.Response {
	assistant := &model.Message{Role: model.RoleAssistant}
	out := model.Response{Message: assistant}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		assistant.Content = choice.Message.Content
		for _, call := range choice.Message.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, model.ToolCall{
				ID:        call.ID,
				Name:      tools.Ident(call.Function.Name),
				Arguments: []byte(call.Function.Arguments),
			})
		}
		out.StopReason = string(choice.FinishReason)
	}
	out.TextContent = assistant.Content
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return out
}
