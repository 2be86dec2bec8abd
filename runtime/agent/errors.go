package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
)

// ErrorKind classifies action failures for QoS retry decisions.
type ErrorKind string

const (
	// ErrorKindBusiness marks an action that completed with a FAILED status.
	ErrorKindBusiness ErrorKind = "ACTION_BUSINESS_FAILURE"
	// ErrorKindTransient marks a failure worth retrying under QoS.
	ErrorKindTransient ErrorKind = "ACTION_TRANSIENT_FAILURE"
	// ErrorKindToolNotFound marks a tool call naming an unknown tool.
	ErrorKindToolNotFound ErrorKind = "TOOL_NOT_FOUND"
	// ErrorKindToolTimeout marks a per-tool deadline exceeded in parallel
	// mode.
	ErrorKindToolTimeout ErrorKind = "TOOL_TIMEOUT"
	// ErrorKindMaxIterations marks a tool loop that hit its iteration cap.
	ErrorKindMaxIterations ErrorKind = "MAX_ITERATIONS_EXCEEDED"
	// ErrorKindGuardRail marks a guard rejecting model input or output.
	ErrorKindGuardRail ErrorKind = "GUARD_RAIL_VIOLATION"
	// ErrorKindValidation marks structured output that never conformed to
	// its schema.
	ErrorKindValidation ErrorKind = "VALIDATION_FAILURE"
	// ErrorKindConfiguration marks a missing required collaborator, raised
	// at invocation construction.
	ErrorKindConfiguration ErrorKind = "CONFIGURATION_ERROR"
)

type (
	// ClassifiedError attaches an ErrorKind to an underlying error so the
	// QoS envelope can decide whether to retry.
	ClassifiedError struct {
		Kind ErrorKind
		Err  error
	}

	// ReplanRequestedError is a control-flow signal: the current plan is
	// stale and the executor must replan. It is not an error condition and
	// must propagate through blanket handlers.
	ReplanRequestedError struct {
		// Reason is recorded in history and events.
		Reason string
		// Update, when non-nil, is applied to the blackboard before
		// replanning.
		Update func(bb *blackboard.Blackboard)
	}

	// AwaitableError is a control-flow signal: the process must suspend
	// WAITING on the carried awaitable.
	AwaitableError struct {
		Awaitable *await.Awaitable
	}

	// ProcessKilledError is a control-flow signal: the process was killed
	// externally and must stop at the next check.
	ProcessKilledError struct{}

	// ConfigurationError reports an invalid agent or invocation at
	// construction time.
	ConfigurationError struct {
		Agent    string
		Problems []string
	}
)

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", strings.ToLower(string(e.Kind)), e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func (e *ReplanRequestedError) Error() string {
	return fmt.Sprintf("replan requested: %s", e.Reason)
}

func (e *AwaitableError) Error() string {
	kind := ""
	if e.Awaitable != nil {
		kind = string(e.Awaitable.Kind)
	}
	return fmt.Sprintf("awaiting external input (%s)", kind)
}

func (e *ProcessKilledError) Error() string { return "process killed" }

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent %q configuration invalid: %s", e.Agent, strings.Join(e.Problems, "; "))
}

// Transient wraps err as a retriable failure.
func Transient(err error) error {
	return &ClassifiedError{Kind: ErrorKindTransient, Err: err}
}

// Classified wraps err with an explicit kind.
func Classified(kind ErrorKind, err error) error {
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to ErrorKindTransient for
// unclassified errors so plain failures stay eligible for QoS retries.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindTransient
}

// IsControlFlow reports whether err is a control-flow signal that must bypass
// the QoS envelope and reach the executor.
func IsControlFlow(err error) bool {
	var (
		replan *ReplanRequestedError
		aw     *AwaitableError
		killed *ProcessKilledError
	)
	return errors.As(err, &replan) || errors.As(err, &aw) || errors.As(err, &killed)
}
