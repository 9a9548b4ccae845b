package rbac

import (
	"time"
)

// Action is one of the three permission flags carried by every permission row
type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Actions returns the actions in display order
func Actions() []Action {
	return []Action{ActionView, ActionEdit, ActionDelete}
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// DefaultAdminRoleCode is the reserved role that bypasses every permission lookup
const DefaultAdminRoleCode = "ADMIN"

// Role represents a named bundle of permissions identified by a unique code
type Role struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserRoleAssignment binds an email to exactly one role
type UserRoleAssignment struct {
	Email      string    `json:"email"`
	RoleCode   string    `json:"role_code"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Flags holds the view/edit/delete booleans shared by resource and page permissions
type Flags struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// Get returns the flag for action
func (f Flags) Get(action Action) bool {
	switch action {
	case ActionView:
		return f.CanView
	case ActionEdit:
		return f.CanEdit
	case ActionDelete:
		return f.CanDelete
	}
	return false
}

// With returns a copy of f with the flag for action set to value
func (f Flags) With(action Action, value bool) Flags {
	switch action {
	case ActionView:
		f.CanView = value
	case ActionEdit:
		f.CanEdit = value
	case ActionDelete:
		f.CanDelete = value
	}
	return f
}

// ResourcePermission grants a role access to a resource and a subset of its columns
type ResourcePermission struct {
	RoleCode       string          `json:"role_code"`
	ResourceCode   string          `json:"resource_code"`
	Flags
	AllowedColumns ColumnSelection `json:"-"`
}

// Columns returns the allowed columns, treating an unset selection as no columns
func (p ResourcePermission) Columns() ColumnSelection {
	if p.AllowedColumns == nil {
		return NoColumns()
	}
	return p.AllowedColumns
}

// PagePermission grants a role access to a page within a module
type PagePermission struct {
	RoleCode string `json:"role_code"`
	PageCode string `json:"page_code"`
	Flags
}

// Identity is the authenticated principal whose permissions are being resolved
type Identity struct {
	Email string `json:"email"`

	// LegacySuperuser carries the old client-side superuser flag. It is only
	// honoured when a LegacySuperuserBypass is present in the bypass chain.
	LegacySuperuser bool `json:"legacy_superuser,omitempty"`
}
