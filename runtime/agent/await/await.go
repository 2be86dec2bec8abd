// Package await implements the human-in-the-loop suspension protocol. An
// Awaitable is a request for external input that suspends the owning process;
// the response handler applies the input to the blackboard and the executor
// resumes the interrupted action.
package await

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
)

// Kind classifies what the awaitable asks of the external party.
type Kind string

const (
	// KindConfirmation asks for a yes/no approval of a pending operation.
	KindConfirmation Kind = "CONFIRMATION"
	// KindTypeRequest asks for a value of a specific domain type.
	KindTypeRequest Kind = "TYPE_REQUEST"
	// KindFormBinding asks for a set of named values to bind.
	KindFormBinding Kind = "FORM_BINDING"
)

// Disposition reports whether a response changed the blackboard.
type Disposition string

const (
	// Updated means the response handler wrote to the blackboard.
	Updated Disposition = "UPDATED"
	// Unchanged means the response handler left the blackboard as it was.
	Unchanged Disposition = "UNCHANGED"
)

// ResponseHandler applies an external response to the blackboard. It returns
// Updated when it mutated the blackboard and Unchanged otherwise. Handlers
// must be idempotent for Unchanged outcomes.
type ResponseHandler func(response any, bb *blackboard.Blackboard) (Disposition, error)

// Awaitable is a suspension request with a stable identifier. The payload is
// surfaced verbatim to the external caller; the handler interprets the
// response.
type Awaitable struct {
	// ID is the stable identifier correlating the suspension with its
	// response.
	ID string
	// Kind classifies the request.
	Kind Kind
	// Payload is surfaced to the external party. It must be JSON-serializable
	// when the awaitable is persistent.
	Payload map[string]any
	// Persistent awaitables are round-tripped through the process store so
	// they survive platform restarts.
	Persistent bool
	// OnResponse applies the response to the blackboard.
	OnResponse ResponseHandler
}

// Respond applies the response through the awaitable's handler. A nil handler
// is treated as Unchanged.
func (a *Awaitable) Respond(response any, bb *blackboard.Blackboard) (Disposition, error) {
	if a.OnResponse == nil {
		return Unchanged, nil
	}
	return a.OnResponse(response, bb)
}

// NewConfirmation returns an awaitable asking the external party to approve
// the described operation. On an affirmative response the named condition is
// set true on the blackboard; on a negative response it is set false. Either
// way the blackboard changes, so the disposition is Updated.
func NewConfirmation(condition string, payload map[string]any) *Awaitable {
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["condition"] = condition
	return &Awaitable{
		ID:      uuid.NewString(),
		Kind:    KindConfirmation,
		Payload: payload,
		OnResponse: func(response any, bb *blackboard.Blackboard) (Disposition, error) {
			approved, err := coerceBool(response)
			if err != nil {
				return Unchanged, err
			}
			bb.SetCondition(condition, approved)
			return Updated, nil
		},
	}
}

// NewTypeRequest returns an awaitable asking for a value of the named domain
// type. The response is validated against the type's schema and bound on the
// blackboard under bindName (the type name when bindName is empty). The
// effective bind name rides in the payload so a persisted request resumes
// binding under the same name.
func NewTypeRequest(typeName, bindName string, payload map[string]any) *Awaitable {
	if bindName == "" {
		bindName = typeName
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["type"] = typeName
	payload["bind"] = bindName
	return &Awaitable{
		ID:      uuid.NewString(),
		Kind:    KindTypeRequest,
		Payload: payload,
		OnResponse: func(response any, bb *blackboard.Blackboard) (Disposition, error) {
			if response == nil {
				return Unchanged, errors.New("await: response value is required")
			}
			if err := bb.Types().ValidateValue(typeName, response); err != nil {
				return Unchanged, fmt.Errorf("await: response does not satisfy type %q: %w", typeName, err)
			}
			bb.Bind(bindName, response)
			return Updated, nil
		},
	}
}

// NewFormBinding returns an awaitable asking for a set of named values. The
// response must be a map of binding name to value; every entry is bound on
// the blackboard. Missing or empty responses leave the blackboard unchanged.
func NewFormBinding(fields []string, payload map[string]any) *Awaitable {
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["fields"] = fields
	return &Awaitable{
		ID:      uuid.NewString(),
		Kind:    KindFormBinding,
		Payload: payload,
		OnResponse: func(response any, bb *blackboard.Blackboard) (Disposition, error) {
			values, err := coerceMap(response)
			if err != nil {
				return Unchanged, err
			}
			if len(values) == 0 {
				return Unchanged, nil
			}
			for name, v := range values {
				bb.Bind(name, v)
			}
			return Updated, nil
		},
	}
}

func coerceBool(response any) (bool, error) {
	switch v := response.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true", "yes", "accepted", "approved":
			return true, nil
		case "false", "no", "rejected", "denied":
			return false, nil
		}
		return false, fmt.Errorf("await: cannot interpret %q as a confirmation", v)
	case map[string]any:
		if b, ok := v["approved"].(bool); ok {
			return b, nil
		}
		return false, errors.New("await: confirmation response missing approved field")
	default:
		return false, fmt.Errorf("await: cannot interpret %T as a confirmation", response)
	}
}

func coerceMap(response any) (map[string]any, error) {
	switch v := response.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case json.RawMessage:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err != nil {
			return nil, fmt.Errorf("await: form response is not a JSON object: %w", err)
		}
		return m, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("await: form response is not a JSON object: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("await: cannot interpret %T as a form response", response)
	}
}
