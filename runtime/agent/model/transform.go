package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultTransformAttempts bounds validation-feedback retries for structured
// output when the caller does not configure a limit.
const DefaultTransformAttempts = 3

type (
	// TransformRequest configures a structured-output model call: the model
	// receives the prompt (plus optional prior interaction) and must answer
	// with JSON conforming to Schema.
	TransformRequest struct {
		// Model selects the provider model. Empty uses the client default.
		Model string
		// Prompt is the user instruction for this transformation.
		Prompt string
		// Interaction optionally provides prior conversation context.
		Interaction []*Message
		// Schema validates the decoded output when non-nil. Validation
		// failures are fed back to the model and retried.
		Schema *jsonschema.Schema
		// MaxAttempts bounds validation retries. Zero means
		// DefaultTransformAttempts.
		MaxAttempts int
		// Temperature controls sampling for the transformation call.
		Temperature float32
		// Thinking enables provider thinking modes for the call.
		Thinking *ThinkingOptions
	}

	// ValidationError reports that the model output did not conform to the
	// requested schema after all attempts.
	ValidationError struct {
		// Attempts is the number of model calls made.
		Attempts int
		// LastOutput is the final non-conforming output.
		LastOutput string
		// Cause is the final decode or validation error.
		Cause error
	}
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("model: structured output failed validation after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Transform invokes the client and decodes the response into out, validating
// against the request schema. Non-conforming responses are retried with the
// validation error quoted back to the model. Returns the accumulated usage
// across all attempts.
func Transform(ctx context.Context, c Client, req TransformRequest, out any) (TokenUsage, error) {
	usage, _, err := transform(ctx, c, req, out)
	return usage, err
}

// TransformWithThinking behaves like Transform and additionally returns the
// reasoning blocks emitted by thinking-enabled models.
func TransformWithThinking(ctx context.Context, c Client, req TransformRequest, out any) (TokenUsage, []string, error) {
	if req.Thinking == nil {
		req.Thinking = &ThinkingOptions{Enable: true}
	}
	return transform(ctx, c, req, out)
}

func transform(ctx context.Context, c Client, req TransformRequest, out any) (TokenUsage, []string, error) {
	attempts := req.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultTransformAttempts
	}

	messages := make([]*Message, 0, len(req.Interaction)+2)
	messages = append(messages, SystemMessage(
		"Answer with a single JSON document and nothing else. No prose, no code fences."))
	messages = append(messages, req.Interaction...)
	messages = append(messages, UserMessage(req.Prompt))

	var (
		usage    TokenUsage
		thinking []string
		lastOut  string
		lastErr  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.Complete(ctx, Request{
			Model:       req.Model,
			Messages:    messages,
			Temperature: req.Temperature,
			Thinking:    req.Thinking,
		})
		if err != nil {
			return usage, thinking, err
		}
		usage.Add(resp.Usage)
		thinking = append(thinking, resp.Thinking...)
		lastOut = resp.TextContent

		payload := extractJSON(resp.TextContent)
		if err := decodeValidated(payload, req.Schema, out); err != nil {
			lastErr = err
			messages = append(messages,
				AssistantMessage(resp.TextContent),
				UserMessage(fmt.Sprintf(
					"The previous response failed validation: %v. Respond again with corrected JSON only.", err)),
			)
			continue
		}
		return usage, thinking, nil
	}
	return usage, thinking, &ValidationError{Attempts: attempts, LastOutput: lastOut, Cause: lastErr}
}

func decodeValidated(payload string, schema *jsonschema.Schema, out any) error {
	if schema != nil {
		inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
		if err != nil {
			return fmt.Errorf("output is not valid JSON: %w", err)
		}
		if err := schema.Validate(inst); err != nil {
			return err
		}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("output does not match expected shape: %w", err)
	}
	return nil
}

// extractJSON pulls the first JSON object or array out of a model response,
// tolerating code fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		switch c := s[i]; {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
