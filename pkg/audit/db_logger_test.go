package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/contextkeys"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func newDBLogger(t *testing.T) *DBLogger {
	t.Helper()
	logger, err := NewDBLogger(rbac.OpenTestDB(t))
	require.NoError(t, err)
	return logger
}

func TestNewDBLogger_NilDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_LogAndSearch(t *testing.T) {
	logger := newDBLogger(t)
	ctx := contextkeys.WithRequestID(context.Background(), "req-1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		{EventType: EventTypeRoleCreate, Status: EventStatusSuccess, Actor: "root@example.com", RoleCode: "SALES", Message: "Role created"},
		{EventType: EventTypeRoleAssign, Status: EventStatusSuccess, Actor: "root@example.com", RoleCode: "SALES", Subject: "agent@example.com"},
		{EventType: EventTypeResourcePermission, Status: EventStatusSuccess, Actor: "ops@example.com", RoleCode: "SUPPORT", Subject: "orders",
			Changes: &ChangeDetails{After: map[string]interface{}{"can_view": true}}},
	}
	for i, e := range events {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, logger.Log(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	all, err := logger.Search(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventTypeResourcePermission, all[0].EventType, "newest first")
	assert.Equal(t, true, all[0].Changes.After["can_view"])
	assert.True(t, all[2].Timestamp.Equal(base))

	sales, err := logger.Search(ctx, Filter{RoleCode: "SALES"})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	byActor, err := logger.Search(ctx, Filter{Actor: "ops@example.com"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "orders", byActor[0].Subject)

	byType, err := logger.Search(ctx, Filter{EventTypes: []EventType{EventTypeRoleCreate, EventTypeRoleAssign}})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	since := base.Add(30 * time.Second)
	until := base.Add(90 * time.Second)
	window, err := logger.Search(ctx, Filter{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, EventTypeRoleAssign, window[0].EventType)

	page, err := logger.Search(ctx, Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, EventTypeRoleAssign, page[0].EventType)

	none, err := logger.Search(ctx, Filter{RoleCode: "NOPE"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestDBLogger_FillsIDAndTimestamp(t *testing.T) {
	logger := newDBLogger(t)

	event := &Event{EventType: EventTypeRoleDelete, Status: EventStatusSuccess}
	require.NoError(t, logger.Log(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestDBLogger_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(errors.New("disk full"))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	err = logger.Log(context.Background(), NewEvent(context.Background(), EventTypeRoleCreate, EventStatusSuccess))
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_CorruptChanges(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "event_type", "status", "actor", "role_code", "subject", "request_id", "message", "error_message", "changes"}).
		AddRow("e1", time.Now(), "role.create", "success", "", "SALES", "", "", "", "", "{not json")
	mock.ExpectQuery("SELECT (.+) FROM audit_events").WillReturnRows(rows)

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	_, err = logger.Search(context.Background(), Filter{})
	assert.ErrorContains(t, err, "e1")
}

func TestFilter_Limit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Filter{}.limit())
	assert.Equal(t, 5, Filter{Limit: 5}.limit())
	assert.Equal(t, MaxLimit, Filter{Limit: MaxLimit + 1}.limit())
}

func TestNewEvent(t *testing.T) {
	event := NewEvent(context.Background(), EventTypeRoleCreate, EventStatusSuccess)
	assert.Empty(t, event.Actor)
	assert.Empty(t, event.RequestID)

	ctx := contextkeys.WithRequestID(context.Background(), "req-9")
	ctx = contextkeys.WithIdentity(ctx, rbac.Identity{Email: "root@example.com"})

	event = NewEvent(ctx, EventTypeRoleRevoke, EventStatusFailure)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "req-9", event.RequestID)
	assert.Equal(t, "root@example.com", event.Actor)
	assert.Equal(t, EventTypeRoleRevoke, event.EventType)
	assert.Equal(t, EventStatusFailure, event.Status)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}
