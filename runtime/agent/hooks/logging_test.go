package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
)

type capturedLine struct {
	level   string
	msg     string
	keyvals []any
}

type capturingLogger struct {
	lines []capturedLine
}

func (l *capturingLogger) log(level, msg string, keyvals []any) {
	l.lines = append(l.lines, capturedLine{level: level, msg: msg, keyvals: keyvals})
}

func (l *capturingLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.log("debug", msg, keyvals)
}

func (l *capturingLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.log("info", msg, keyvals)
}

func (l *capturingLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.log("warn", msg, keyvals)
}

func (l *capturingLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.log("error", msg, keyvals)
}

var _ telemetry.Logger = (*capturingLogger)(nil)

func keyvalMap(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func TestLoggingSubscriberLogsEventMetadata(t *testing.T) {
	logger := &capturingLogger{}
	sub := NewLoggingSubscriber(logger)

	require.NoError(t, sub.HandleEvent(context.Background(), NewProcessCreatedEvent("p1", "researcher", "")))
	require.Len(t, logger.lines, 1)
	require.Equal(t, "info", logger.lines[0].level)
	require.Equal(t, "agent event", logger.lines[0].msg)

	fields := keyvalMap(logger.lines[0].keyvals)
	require.Equal(t, "process_created", fields["event"])
	require.Equal(t, "p1", fields["process_id"])
}

func TestLoggingSubscriberAddsPerTypeFields(t *testing.T) {
	logger := &capturingLogger{}
	sub := NewLoggingSubscriber(logger)

	tel := telemetry.ActionTelemetry{Attempts: 2}
	require.NoError(t, sub.HandleEvent(context.Background(),
		NewActionCompletedEvent("p1", "fetch", "FAILED", "upstream down", tel)))
	fields := keyvalMap(logger.lines[0].keyvals)
	require.Equal(t, "fetch", fields["action"])
	require.Equal(t, "FAILED", fields["status"])
	require.Equal(t, "upstream down", fields["error"])

	require.NoError(t, sub.HandleEvent(context.Background(),
		NewProcessFinishedEvent("p1", "COMPLETED", 3*time.Second)))
	fields = keyvalMap(logger.lines[1].keyvals)
	require.Equal(t, "COMPLETED", fields["status"])
	require.Equal(t, "3s", fields["running_time"])
}

func TestLoggingSubscriberDebugLevel(t *testing.T) {
	logger := &capturingLogger{}
	sub := NewLoggingSubscriber(logger)
	sub.Debug = true

	require.NoError(t, sub.HandleEvent(context.Background(), NewProcessCreatedEvent("p1", "researcher", "")))
	require.Equal(t, "debug", logger.lines[0].level)
}
