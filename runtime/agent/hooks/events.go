package hooks

import (
	"time"

	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// EventType identifies the kind of a published event.
type EventType string

// Published event kinds. Every event carries the owning process id and a
// timestamp; subscribers switch on Type to downcast.
const (
	ProcessCreated   EventType = "process_created"
	ReadyToPlan      EventType = "ready_to_plan"
	PlanFormulated   EventType = "plan_formulated"
	ActionStarted    EventType = "action_started"
	ActionCompleted  EventType = "action_completed"
	ToolCallRequest  EventType = "tool_call_request"
	ToolCallResponse EventType = "tool_call_response"
	LLMRequest       EventType = "llm_request"
	LLMResponse      EventType = "llm_response"
	ObjectAdded      EventType = "object_added"
	ObjectBound      EventType = "object_bound"
	GoalAchieved     EventType = "goal_achieved"
	ProcessWaiting   EventType = "process_waiting"
	ProcessPaused    EventType = "process_paused"
	ProcessResumed   EventType = "process_resumed"
	ProcessStuck     EventType = "process_stuck"
	ProcessFinished  EventType = "process_finished"
	EarlyTermination EventType = "early_termination"
	ReplanRequested  EventType = "replan_requested"
	ProgressUpdate   EventType = "progress_update"
)

type (
	// Event is the contract all published events satisfy.
	Event interface {
		// ProcessID identifies the agent process the event belongs to.
		ProcessID() string
		// Time is the publication timestamp.
		Time() time.Time
		// Type returns the event kind constant.
		Type() EventType
	}

	baseEvent struct {
		processID string
		ts        time.Time
	}

	// ProcessCreatedEvent announces a new agent process.
	ProcessCreatedEvent struct {
		baseEvent
		// AgentName is the name of the agent the process runs.
		AgentName string
		// ParentProcessID is set for processes spawned by another process.
		ParentProcessID string
	}

	// ReadyToPlanEvent precedes each planning cycle and carries the world
	// state the planner will see.
	ReadyToPlanEvent struct {
		baseEvent
		// WorldState is the proposition snapshot handed to the planner.
		WorldState map[string]bool
	}

	// PlanFormulatedEvent announces the plan selected for the next step.
	PlanFormulatedEvent struct {
		baseEvent
		// Actions lists the planned action names in execution order.
		Actions []string
		// Goal names the goal the plan targets, when known.
		Goal string
		// PlannerType identifies the planning discipline that produced the
		// plan.
		PlannerType string
	}

	// ActionStartedEvent marks the start of one QoS attempt of an action.
	ActionStartedEvent struct {
		baseEvent
		Action  string
		Attempt int
	}

	// ActionCompletedEvent reports the outcome of an action execution,
	// retries included.
	ActionCompletedEvent struct {
		baseEvent
		Action string
		// Status is the terminal action status code string.
		Status string
		// Error is the failure message, empty on success.
		Error string
		// Telemetry aggregates duration, attempts, and model usage.
		Telemetry telemetry.ActionTelemetry
	}

	// ToolCallRequestEvent precedes a tool invocation issued by the tool
	// loop.
	ToolCallRequestEvent struct {
		baseEvent
		Tool       tools.Ident
		ToolCallID string
		// Arguments is the raw JSON payload the model emitted.
		Arguments string
	}

	// ToolCallResponseEvent follows a tool invocation with its rendered
	// result.
	ToolCallResponseEvent struct {
		baseEvent
		Tool       tools.Ident
		ToolCallID string
		// Content is the rendered result text fed back to the model.
		Content string
		// IsError reports whether the result was an error result.
		IsError  bool
		Duration time.Duration
	}

	// LLMRequestEvent precedes a model invocation.
	LLMRequestEvent struct {
		baseEvent
		// Model is the provider model identifier, empty for the default.
		Model string
		// Messages counts the conversation messages sent.
		Messages int
		// Tools counts the tool schemas exposed.
		Tools int
	}

	// LLMResponseEvent follows a model invocation.
	LLMResponseEvent struct {
		baseEvent
		Model      string
		StopReason string
		// ToolCalls counts the tool invocations the model requested.
		ToolCalls int
		Usage     model.TokenUsage
		Duration  time.Duration
	}

	// ObjectAddedEvent reports an anonymous value appended to the blackboard.
	ObjectAddedEvent struct {
		baseEvent
		// EntryID is the blackboard entry identifier.
		EntryID string
		// TypeName is the resolved domain type, empty when unregistered.
		TypeName string
	}

	// ObjectBoundEvent reports a named value bound on the blackboard.
	ObjectBoundEvent struct {
		baseEvent
		Name     string
		EntryID  string
		TypeName string
	}

	// GoalAchievedEvent reports that a goal's preconditions hold and its
	// output value is present.
	GoalAchievedEvent struct {
		baseEvent
		Goal string
	}

	// ProcessWaitingEvent reports suspension on an awaitable.
	ProcessWaitingEvent struct {
		baseEvent
		// AwaitableID correlates the suspension with a later response.
		AwaitableID string
		// Kind is the awaitable kind string.
		Kind string
	}

	// ProcessPausedEvent reports an external pause.
	ProcessPausedEvent struct {
		baseEvent
		Reason string
	}

	// ProcessResumedEvent reports a resume after pause or wait.
	ProcessResumedEvent struct {
		baseEvent
	}

	// ProcessStuckEvent reports that no plan could be produced. It carries
	// the context a caller needs to render a diagnosis.
	ProcessStuckEvent struct {
		baseEvent
		WorldState       map[string]bool
		AvailableActions []string
	}

	// ProcessFinishedEvent reports a terminal transition.
	ProcessFinishedEvent struct {
		baseEvent
		// Status is the terminal process status string.
		Status string
		// RunningTime is the total active execution time.
		RunningTime time.Duration
	}

	// EarlyTerminationEvent reports that an early termination policy fired.
	EarlyTerminationEvent struct {
		baseEvent
		// Policy names the policy that fired (max_actions, wall_clock, cost).
		Policy string
		Reason string
	}

	// ReplanRequestedEvent reports a replan control-flow signal.
	ReplanRequestedEvent struct {
		baseEvent
		Reason string
	}

	// ProgressUpdateEvent carries free-form progress reporting from actions
	// and tools.
	ProgressUpdateEvent struct {
		baseEvent
		Message string
		// Percent is in [0,100], negative when unknown.
		Percent float64
	}
)

func newBaseEvent(processID string) baseEvent {
	return baseEvent{processID: processID, ts: time.Now().UTC()}
}

func (e baseEvent) ProcessID() string { return e.processID }
func (e baseEvent) Time() time.Time   { return e.ts }

func (e *ProcessCreatedEvent) Type() EventType   { return ProcessCreated }
func (e *ReadyToPlanEvent) Type() EventType      { return ReadyToPlan }
func (e *PlanFormulatedEvent) Type() EventType   { return PlanFormulated }
func (e *ActionStartedEvent) Type() EventType    { return ActionStarted }
func (e *ActionCompletedEvent) Type() EventType  { return ActionCompleted }
func (e *ToolCallRequestEvent) Type() EventType  { return ToolCallRequest }
func (e *ToolCallResponseEvent) Type() EventType { return ToolCallResponse }
func (e *LLMRequestEvent) Type() EventType       { return LLMRequest }
func (e *LLMResponseEvent) Type() EventType      { return LLMResponse }
func (e *ObjectAddedEvent) Type() EventType      { return ObjectAdded }
func (e *ObjectBoundEvent) Type() EventType      { return ObjectBound }
func (e *GoalAchievedEvent) Type() EventType     { return GoalAchieved }
func (e *ProcessWaitingEvent) Type() EventType   { return ProcessWaiting }
func (e *ProcessPausedEvent) Type() EventType    { return ProcessPaused }
func (e *ProcessResumedEvent) Type() EventType   { return ProcessResumed }
func (e *ProcessStuckEvent) Type() EventType     { return ProcessStuck }
func (e *ProcessFinishedEvent) Type() EventType  { return ProcessFinished }
func (e *EarlyTerminationEvent) Type() EventType { return EarlyTermination }
func (e *ReplanRequestedEvent) Type() EventType  { return ReplanRequested }
func (e *ProgressUpdateEvent) Type() EventType   { return ProgressUpdate }

// NewProcessCreatedEvent constructs a ProcessCreatedEvent.
func NewProcessCreatedEvent(processID, agentName, parentID string) *ProcessCreatedEvent {
	return &ProcessCreatedEvent{baseEvent: newBaseEvent(processID), AgentName: agentName, ParentProcessID: parentID}
}

// NewReadyToPlanEvent constructs a ReadyToPlanEvent with the given world
// state snapshot.
func NewReadyToPlanEvent(processID string, worldState map[string]bool) *ReadyToPlanEvent {
	return &ReadyToPlanEvent{baseEvent: newBaseEvent(processID), WorldState: worldState}
}

// NewPlanFormulatedEvent constructs a PlanFormulatedEvent.
func NewPlanFormulatedEvent(processID string, actions []string, goal, plannerType string) *PlanFormulatedEvent {
	return &PlanFormulatedEvent{baseEvent: newBaseEvent(processID), Actions: actions, Goal: goal, PlannerType: plannerType}
}

// NewActionStartedEvent constructs an ActionStartedEvent for one attempt.
func NewActionStartedEvent(processID, action string, attempt int) *ActionStartedEvent {
	return &ActionStartedEvent{baseEvent: newBaseEvent(processID), Action: action, Attempt: attempt}
}

// NewActionCompletedEvent constructs an ActionCompletedEvent.
func NewActionCompletedEvent(processID, action, status, errMsg string, tel telemetry.ActionTelemetry) *ActionCompletedEvent {
	return &ActionCompletedEvent{baseEvent: newBaseEvent(processID), Action: action, Status: status, Error: errMsg, Telemetry: tel}
}

// NewToolCallRequestEvent constructs a ToolCallRequestEvent.
func NewToolCallRequestEvent(processID string, tool tools.Ident, toolCallID, arguments string) *ToolCallRequestEvent {
	return &ToolCallRequestEvent{baseEvent: newBaseEvent(processID), Tool: tool, ToolCallID: toolCallID, Arguments: arguments}
}

// NewToolCallResponseEvent constructs a ToolCallResponseEvent.
func NewToolCallResponseEvent(processID string, tool tools.Ident, toolCallID, content string, isError bool, duration time.Duration) *ToolCallResponseEvent {
	return &ToolCallResponseEvent{baseEvent: newBaseEvent(processID), Tool: tool, ToolCallID: toolCallID, Content: content, IsError: isError, Duration: duration}
}

// NewLLMRequestEvent constructs an LLMRequestEvent.
func NewLLMRequestEvent(processID, modelID string, messages, toolCount int) *LLMRequestEvent {
	return &LLMRequestEvent{baseEvent: newBaseEvent(processID), Model: modelID, Messages: messages, Tools: toolCount}
}

// NewLLMResponseEvent constructs an LLMResponseEvent.
func NewLLMResponseEvent(processID, modelID, stopReason string, toolCalls int, usage model.TokenUsage, duration time.Duration) *LLMResponseEvent {
	return &LLMResponseEvent{baseEvent: newBaseEvent(processID), Model: modelID, StopReason: stopReason, ToolCalls: toolCalls, Usage: usage, Duration: duration}
}

// NewObjectAddedEvent constructs an ObjectAddedEvent.
func NewObjectAddedEvent(processID, entryID, typeName string) *ObjectAddedEvent {
	return &ObjectAddedEvent{baseEvent: newBaseEvent(processID), EntryID: entryID, TypeName: typeName}
}

// NewObjectBoundEvent constructs an ObjectBoundEvent.
func NewObjectBoundEvent(processID, name, entryID, typeName string) *ObjectBoundEvent {
	return &ObjectBoundEvent{baseEvent: newBaseEvent(processID), Name: name, EntryID: entryID, TypeName: typeName}
}

// NewGoalAchievedEvent constructs a GoalAchievedEvent.
func NewGoalAchievedEvent(processID, goal string) *GoalAchievedEvent {
	return &GoalAchievedEvent{baseEvent: newBaseEvent(processID), Goal: goal}
}

// NewProcessWaitingEvent constructs a ProcessWaitingEvent.
func NewProcessWaitingEvent(processID, awaitableID, kind string) *ProcessWaitingEvent {
	return &ProcessWaitingEvent{baseEvent: newBaseEvent(processID), AwaitableID: awaitableID, Kind: kind}
}

// NewProcessPausedEvent constructs a ProcessPausedEvent.
func NewProcessPausedEvent(processID, reason string) *ProcessPausedEvent {
	return &ProcessPausedEvent{baseEvent: newBaseEvent(processID), Reason: reason}
}

// NewProcessResumedEvent constructs a ProcessResumedEvent.
func NewProcessResumedEvent(processID string) *ProcessResumedEvent {
	return &ProcessResumedEvent{baseEvent: newBaseEvent(processID)}
}

// NewProcessStuckEvent constructs a ProcessStuckEvent.
func NewProcessStuckEvent(processID string, worldState map[string]bool, available []string) *ProcessStuckEvent {
	return &ProcessStuckEvent{baseEvent: newBaseEvent(processID), WorldState: worldState, AvailableActions: available}
}

// NewProcessFinishedEvent constructs a ProcessFinishedEvent.
func NewProcessFinishedEvent(processID, status string, runningTime time.Duration) *ProcessFinishedEvent {
	return &ProcessFinishedEvent{baseEvent: newBaseEvent(processID), Status: status, RunningTime: runningTime}
}

// NewEarlyTerminationEvent constructs an EarlyTerminationEvent.
func NewEarlyTerminationEvent(processID, policy, reason string) *EarlyTerminationEvent {
	return &EarlyTerminationEvent{baseEvent: newBaseEvent(processID), Policy: policy, Reason: reason}
}

// NewReplanRequestedEvent constructs a ReplanRequestedEvent.
func NewReplanRequestedEvent(processID, reason string) *ReplanRequestedEvent {
	return &ReplanRequestedEvent{baseEvent: newBaseEvent(processID), Reason: reason}
}

// NewProgressUpdateEvent constructs a ProgressUpdateEvent. Pass a negative
// percent when progress is not quantifiable.
func NewProgressUpdateEvent(processID, message string, percent float64) *ProgressUpdateEvent {
	return &ProgressUpdateEvent{baseEvent: newBaseEvent(processID), Message: message, Percent: percent}
}
