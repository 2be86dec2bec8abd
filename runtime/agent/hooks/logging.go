package hooks

import (
	"context"

	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
)

// LoggingSubscriber logs every published event through a telemetry.Logger.
// It never returns an error, so it cannot halt publication.
type LoggingSubscriber struct {
	logger telemetry.Logger
	// Debug routes events to the debug level instead of info.
	Debug bool
}

// NewLoggingSubscriber returns a subscriber that logs events.
func NewLoggingSubscriber(logger telemetry.Logger) *LoggingSubscriber {
	return &LoggingSubscriber{logger: logger}
}

// HandleEvent implements Subscriber.
func (s *LoggingSubscriber) HandleEvent(ctx context.Context, event Event) error {
	keyvals := []any{
		"event", string(event.Type()),
		"process_id", event.ProcessID(),
	}
	switch e := event.(type) {
	case *PlanFormulatedEvent:
		keyvals = append(keyvals, "actions", e.Actions, "planner", e.PlannerType)
	case *ActionCompletedEvent:
		keyvals = append(keyvals, "action", e.Action, "status", e.Status)
		if e.Error != "" {
			keyvals = append(keyvals, "error", e.Error)
		}
	case *ToolCallResponseEvent:
		keyvals = append(keyvals, "tool", string(e.Tool), "is_error", e.IsError)
	case *LLMResponseEvent:
		keyvals = append(keyvals, "model", e.Model, "input_tokens", e.Usage.InputTokens, "output_tokens", e.Usage.OutputTokens)
	case *ProcessFinishedEvent:
		keyvals = append(keyvals, "status", e.Status, "running_time", e.RunningTime.String())
	case *ProcessStuckEvent:
		keyvals = append(keyvals, "available_actions", e.AvailableActions)
	}
	if s.Debug {
		s.logger.Debug(ctx, "agent event", keyvals...)
	} else {
		s.logger.Info(ctx, "agent event", keyvals...)
	}
	return nil
}
