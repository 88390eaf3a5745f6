package agent

import (
	"github.com/hashicorp/go-hclog"
)

// EventLogger is the interface for logging structured events during execution
type EventLogger interface {
	LogEvent(eventType string, data map[string]any)
}

// contextEventLogger wraps an EventLogger and adds context fields to every event
type contextEventLogger struct {
	inner  EventLogger
	fields map[string]any
}

// NewContextEventLogger returns a logger that merges the given fields into
// every event, e.g. to tag all events of one subagent with its task id.
func NewContextEventLogger(inner EventLogger, fields map[string]any) EventLogger {
	return &contextEventLogger{inner: inner, fields: fields}
}

func (l *contextEventLogger) LogEvent(eventType string, data map[string]any) {
	merged := make(map[string]any, len(l.fields)+len(data))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	l.inner.LogEvent(eventType, merged)
}

// hclogEventLogger emits events through an hclog.Logger at info level.
type hclogEventLogger struct {
	logger hclog.Logger
}

// NewHclogEventLogger adapts an hclog.Logger to the EventLogger interface.
func NewHclogEventLogger(logger hclog.Logger) EventLogger {
	return &hclogEventLogger{logger: logger}
}

func (l *hclogEventLogger) LogEvent(eventType string, data map[string]any) {
	args := make([]any, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}
	l.logger.Info(eventType, args...)
}
