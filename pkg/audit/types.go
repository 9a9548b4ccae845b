package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/opsboard/pkg/contextkeys"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

// EventType represents the category of audit event
type EventType string

const (
	// Role lifecycle
	EventTypeRoleCreate EventType = "role.create"
	EventTypeRoleDelete EventType = "role.delete"

	// User role assignments
	EventTypeRoleAssign EventType = "role.assign"
	EventTypeRoleRevoke EventType = "role.revoke"

	// Permission rows
	EventTypeResourcePermission EventType = "permission.resource"
	EventTypePagePermission     EventType = "permission.page"
	EventTypePageBatch          EventType = "permission.page_batch"
	EventTypeModuleToggle       EventType = "permission.module_toggle"
	EventTypeColumnToggle       EventType = "permission.column_toggle"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the email of the administrator, empty for CLI writes
	Actor string `json:"actor,omitempty"`

	RoleCode string `json:"role_code,omitempty"`

	// Subject is the user email, resource or page the event touched
	Subject string `json:"subject,omitempty"`

	RequestID    string         `json:"request_id,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Changes      *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// NewEvent creates an event stamped with a fresh ID and the current time. The
// actor and request ID are taken from ctx when the request carries them.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if identity, ok := ctx.Value(contextkeys.IdentityKey).(rbac.Identity); ok {
		event.Actor = identity.Email
	}
	return event
}

// Filter selects events for Search. Zero fields match everything.
type Filter struct {
	EventTypes []EventType
	Actor      string
	RoleCode   string
	Since      *time.Time
	Until      *time.Time

	Limit  int
	Offset int
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}
