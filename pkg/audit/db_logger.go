package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DBLogger records audit events in the audit_events table created by the
// rbac migrations. It works against PostgreSQL and SQLite.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var changes sql.NullString
	if event.Changes != nil {
		data, err := json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changes = sql.NullString{String: string(data), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, occurred_at, event_type, status,
			actor, role_code, subject, request_id,
			message, error_message, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		event.ID, event.Timestamp, string(event.EventType), string(event.Status),
		event.Actor, event.RoleCode, event.Subject, event.RequestID,
		event.Message, event.ErrorMessage, changes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			placeholders[i] = arg(string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Actor != "" {
		where = append(where, "actor = "+arg(filter.Actor))
	}
	if filter.RoleCode != "" {
		where = append(where, "role_code = "+arg(filter.RoleCode))
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= "+arg(filter.Since.UTC()))
	}
	if filter.Until != nil {
		where = append(where, "occurred_at < "+arg(filter.Until.UTC()))
	}

	query := `
		SELECT id, occurred_at, event_type, status,
			actor, role_code, subject, request_id,
			message, error_message, changes
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id LIMIT " + arg(filter.limit()) + " OFFSET " + arg(filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var (
			event                                                Event
			eventType, status                                    string
			actor, roleCode, subject, requestID, message, errMsg sql.NullString
			changes                                              sql.NullString
		)
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &eventType, &status,
			&actor, &roleCode, &subject, &requestID,
			&message, &errMsg, &changes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.EventType = EventType(eventType)
		event.Status = EventStatus(status)
		event.Actor = actor.String
		event.RoleCode = roleCode.String
		event.Subject = subject.String
		event.RequestID = requestID.String
		event.Message = message.String
		event.ErrorMessage = errMsg.String
		if changes.Valid && changes.String != "" {
			event.Changes = &ChangeDetails{}
			if err := json.Unmarshal([]byte(changes.String), event.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode changes of audit event %s: %w", event.ID, err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (l *DBLogger) Close() error {
	return nil
}
