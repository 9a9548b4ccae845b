// Package rbac provides the role and permission model of opsboard and its
// persistence.
//
// # Overview
//
// Every user (identified by email) holds at most one role. A role carries two
// kinds of permission rows:
//
//   - ResourcePermission: view/edit/delete flags on a data resource plus the
//     columns of that resource the role may see
//   - PagePermission: view/edit/delete flags on a page of the dashboard
//
// A missing row denies everything. The reserved admin role and, when enabled,
// the legacy superuser flag bypass the rows altogether (see BypassChain).
//
// # Column selections
//
// Allowed columns are a ColumnSelection, which is either Wildcard (every
// column of the resource, including columns added later) or ExplicitColumns
// (a fixed set, possibly empty). Selections are persisted as a JSON array;
// ["*"] is the wildcard:
//
//	sel := rbac.ColumnsOf("order_no", "amount")
//	data, _ := rbac.EncodeColumns(sel) // ["amount","order_no"]
//
// # Storage
//
// SQLStore implements Store on database/sql for PostgreSQL (lib/pq) and
// SQLite (go-sqlite3). RunMigrations creates the schema:
//
//	roles                  code, name, department
//	user_role_assignments  email -> role_code, with assigned_at
//	identity_role          email -> role, read by the permission cache
//	resource_permissions   (role_code, resource_code) flags + allowed_columns
//	page_permissions       (role_code, page_code) flags
//
// Assignments write user_role_assignments and identity_role in one
// transaction. There are no foreign keys; DeleteRole applies a DeletionPolicy
// to rows that still reference the role.
//
// Errors wrap ErrDuplicateKey, ErrNotFound, ErrRoleInUse, ErrInvalidRole and
// ErrInvalidPermission so callers can match them with errors.Is.
//
// # Tracing
//
// NewTracingStore wraps any Store and records an OpenTelemetry span per call.
package rbac
