package observability

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with structured logging
//
// Usage in defer statements:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "catalog watcher")
//	    // ... code that might panic
//	}()
//
// The panic is NOT re-raised. Background goroutines use it so that one bad
// event does not take the admin process down.
func RecoverPanic(logger logrus.FieldLogger, context string) {
	if r := recover(); r != nil {
		OrStandard(logger).WithFields(logrus.Fields{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": context,
		}).Error("PANIC recovered")
	}
}
