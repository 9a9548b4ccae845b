package audit

import (
	"context"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an event. Implementations may fill in ID and Timestamp
	// when they are empty.
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// Searcher reads recorded events back
type Searcher interface {
	Search(ctx context.Context, filter Filter) ([]*Event, error)
}

// Nop returns a logger that discards every event
func Nop() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (noOpLogger) Close() error { return nil }
