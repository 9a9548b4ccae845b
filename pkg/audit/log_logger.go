package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured log entries, one per event
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger on top of logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log emits event at info level, or warn when it records a failure
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"audit_id":   event.ID,
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.Actor != "" {
		fields["actor"] = event.Actor
	}
	if event.RoleCode != "" {
		fields["role"] = event.RoleCode
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusFailure {
		entry.WithField("error", event.ErrorMessage).Warn(event.Message)
		return nil
	}
	entry.Info(event.Message)
	return nil
}

func (l *LogrusLogger) Close() error {
	return nil
}
