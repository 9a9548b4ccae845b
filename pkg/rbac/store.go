package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeletionPolicy decides what happens to assignments and permission rows that
// still reference a role being deleted
type DeletionPolicy string

const (
	// DeletionBlock refuses to delete a referenced role with ErrRoleInUse
	DeletionBlock DeletionPolicy = "block"
	// DeletionCascade deletes every dependent row together with the role
	DeletionCascade DeletionPolicy = "cascade"
	// DeletionOrphan deletes the role row only
	DeletionOrphan DeletionPolicy = "orphan"
)

// ParseDeletionPolicy converts a configuration string to a DeletionPolicy
func ParseDeletionPolicy(s string) (DeletionPolicy, error) {
	switch p := DeletionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DeletionBlock, DeletionCascade, DeletionOrphan:
		return p, nil
	}
	return "", fmt.Errorf("unknown role deletion policy %q", s)
}

// PermissionReader is the read side the permission cache depends on
type PermissionReader interface {
	// IdentityRole returns the role code recorded for email, or ErrNotFound
	IdentityRole(ctx context.Context, email string) (string, error)

	// ListResourcePermissions returns every resource permission row of a role
	ListResourcePermissions(ctx context.Context, roleCode string) ([]ResourcePermission, error)

	// ListPagePermissions returns every page permission row of a role
	ListPagePermissions(ctx context.Context, roleCode string) ([]PagePermission, error)
}

// Store is the persistence contract of the authorization engine
type Store interface {
	PermissionReader

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, code string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, code string, policy DeletionPolicy) error

	AssignUserRole(ctx context.Context, email, roleCode string) (*UserRoleAssignment, error)
	RemoveUserRole(ctx context.Context, email string) error
	GetAssignment(ctx context.Context, email string) (*UserRoleAssignment, error)
	ListAssignments(ctx context.Context) ([]UserRoleAssignment, error)

	UpsertResourcePermission(ctx context.Context, perm ResourcePermission) error
	UpsertPagePermission(ctx context.Context, perm PagePermission) error
	BatchUpsertPagePermissions(ctx context.Context, perms []PagePermission) error
}

// SQLStore implements Store on database/sql. The queries use $N placeholders
// and ON CONFLICT upserts, which both PostgreSQL and SQLite accept.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a new SQL-backed store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// CreateRole creates a new role. The code must be unique.
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidRole)
	}

	query := `
		INSERT INTO roles (code, name, department, created_at)
		VALUES ($1, $2, $3, $4)
	`

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, query, role.Code, role.Name, nullString(role.Department), now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role code %s already exists", ErrDuplicateKey, role.Code)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	return nil
}

// GetRole retrieves a role by code
func (s *SQLStore) GetRole(ctx context.Context, code string) (*Role, error) {
	query := `
		SELECT code, name, department, created_at
		FROM roles
		WHERE code = $1
	`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// ListRoles lists all roles ordered by code
func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT code, name, department, created_at
		FROM roles
		ORDER BY code ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// DeleteRole deletes a role, treating dependent rows according to policy
func (s *SQLStore) DeleteRole(ctx context.Context, code string, policy DeletionPolicy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	switch policy {
	case DeletionBlock:
		refs, err := countReferences(ctx, tx, code)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %s has %d dependent rows", ErrRoleInUse, code, refs)
		}
	case DeletionCascade:
		for _, q := range []string{
			`DELETE FROM user_role_assignments WHERE role_code = $1`,
			`DELETE FROM identity_role WHERE role = $1`,
			`DELETE FROM resource_permissions WHERE role_code = $1`,
			`DELETE FROM page_permissions WHERE role_code = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, code); err != nil {
				return fmt.Errorf("failed to delete dependents of role %s: %w", code, err)
			}
		}
	case DeletionOrphan:
	default:
		return fmt.Errorf("unknown role deletion policy %q", policy)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: role %s", ErrNotFound, code)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return nil
}

func countReferences(ctx context.Context, tx *sql.Tx, code string) (int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM user_role_assignments WHERE role_code = $1) +
			(SELECT COUNT(*) FROM identity_role WHERE role = $1) +
			(SELECT COUNT(*) FROM resource_permissions WHERE role_code = $1) +
			(SELECT COUNT(*) FROM page_permissions WHERE role_code = $1)
	`

	var refs int
	if err := tx.QueryRowContext(ctx, query, code).Scan(&refs); err != nil {
		return 0, fmt.Errorf("failed to count role references: %w", err)
	}
	return refs, nil
}

// AssignUserRole sets the role of email, replacing any previous assignment.
// The assignment row and the identity_role row are written together so the
// role lookup and the permission key never diverge.
func (s *SQLStore) AssignUserRole(ctx context.Context, email, roleCode string) (*UserRoleAssignment, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRole)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE code = $1`, roleCode).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up role: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, roleCode)
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_role_assignments (email, role_code, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET role_code = excluded.role_code, assigned_at = excluded.assigned_at
	`, email, roleCode, now)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role to user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identity_role (email, role)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET role = excluded.role
	`, email, roleCode)
	if err != nil {
		return nil, fmt.Errorf("failed to record identity role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role assignment: %w", err)
	}

	return &UserRoleAssignment{Email: email, RoleCode: roleCode, AssignedAt: now}, nil
}

// RemoveUserRole deletes the assignment of email
func (s *SQLStore) RemoveUserRole(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_role_assignments WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to remove user role: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM identity_role WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to remove identity role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role removal: %w", err)
	}
	return nil
}

// GetAssignment returns the assignment of email
func (s *SQLStore) GetAssignment(ctx context.Context, email string) (*UserRoleAssignment, error) {
	query := `
		SELECT email, role_code, assigned_at
		FROM user_role_assignments
		WHERE email = $1
	`

	var a UserRoleAssignment
	err := s.db.QueryRowContext(ctx, query, normalizeEmail(email)).Scan(&a.Email, &a.RoleCode, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: assignment for %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// ListAssignments lists all assignments ordered by email
func (s *SQLStore) ListAssignments(ctx context.Context) ([]UserRoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, role_code, assigned_at
		FROM user_role_assignments
		ORDER BY email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []UserRoleAssignment
	for rows.Next() {
		var a UserRoleAssignment
		if err := rows.Scan(&a.Email, &a.RoleCode, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IdentityRole returns the role recorded for email
func (s *SQLStore) IdentityRole(ctx context.Context, email string) (string, error) {
	var role sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT role FROM identity_role WHERE email = $1`, normalizeEmail(email)).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !role.Valid) {
		return "", fmt.Errorf("%w: identity role for %s", ErrNotFound, email)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get identity role: %w", err)
	}
	return role.String, nil
}

// ListResourcePermissions returns the resource permission rows of a role
func (s *SQLStore) ListResourcePermissions(ctx context.Context, roleCode string) ([]ResourcePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_code, resource_code, can_view, can_edit, can_delete, allowed_columns
		FROM resource_permissions
		WHERE role_code = $1
		ORDER BY resource_code ASC
	`, roleCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource permissions: %w", err)
	}
	defer rows.Close()

	var perms []ResourcePermission
	for rows.Next() {
		var p ResourcePermission
		var columns sql.NullString
		if err := rows.Scan(&p.RoleCode, &p.ResourceCode, &p.CanView, &p.CanEdit, &p.CanDelete, &columns); err != nil {
			return nil, fmt.Errorf("failed to scan resource permission: %w", err)
		}
		sel, err := DecodeColumns([]byte(columns.String))
		if err != nil {
			return nil, fmt.Errorf("resource permission %s/%s: %w", p.RoleCode, p.ResourceCode, err)
		}
		p.AllowedColumns = sel
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListPagePermissions returns the page permission rows of a role
func (s *SQLStore) ListPagePermissions(ctx context.Context, roleCode string) ([]PagePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_code, page_code, can_view, can_edit, can_delete
		FROM page_permissions
		WHERE role_code = $1
		ORDER BY page_code ASC
	`, roleCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list page permissions: %w", err)
	}
	defer rows.Close()

	var perms []PagePermission
	for rows.Next() {
		var p PagePermission
		if err := rows.Scan(&p.RoleCode, &p.PageCode, &p.CanView, &p.CanEdit, &p.CanDelete); err != nil {
			return nil, fmt.Errorf("failed to scan page permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertResourcePermission creates or replaces the row for (role_code, resource_code)
func (s *SQLStore) UpsertResourcePermission(ctx context.Context, perm ResourcePermission) error {
	if perm.RoleCode == "" || perm.ResourceCode == "" {
		return fmt.Errorf("%w: role_code and resource_code are required", ErrInvalidPermission)
	}

	columns, err := EncodeColumns(perm.Columns())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resource_permissions (role_code, resource_code, can_view, can_edit, can_delete, allowed_columns, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (role_code, resource_code) DO UPDATE SET
			can_view = excluded.can_view,
			can_edit = excluded.can_edit,
			can_delete = excluded.can_delete,
			allowed_columns = excluded.allowed_columns,
			updated_at = excluded.updated_at
	`, perm.RoleCode, perm.ResourceCode, perm.CanView, perm.CanEdit, perm.CanDelete, string(columns), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert resource permission: %w", err)
	}
	return nil
}

const upsertPagePermissionQuery = `
	INSERT INTO page_permissions (role_code, page_code, can_view, can_edit, can_delete, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (role_code, page_code) DO UPDATE SET
		can_view = excluded.can_view,
		can_edit = excluded.can_edit,
		can_delete = excluded.can_delete,
		updated_at = excluded.updated_at
`

// UpsertPagePermission creates or replaces the row for (role_code, page_code)
func (s *SQLStore) UpsertPagePermission(ctx context.Context, perm PagePermission) error {
	if perm.RoleCode == "" || perm.PageCode == "" {
		return fmt.Errorf("%w: role_code and page_code are required", ErrInvalidPermission)
	}

	_, err := s.db.ExecContext(ctx, upsertPagePermissionQuery,
		perm.RoleCode, perm.PageCode, perm.CanView, perm.CanEdit, perm.CanDelete, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert page permission: %w", err)
	}
	return nil
}

// BatchUpsertPagePermissions upserts all rows in one transaction. Either
// every row is written or none is.
func (s *SQLStore) BatchUpsertPagePermissions(ctx context.Context, perms []PagePermission) error {
	if len(perms) == 0 {
		return nil
	}
	for _, p := range perms {
		if p.RoleCode == "" || p.PageCode == "" {
			return fmt.Errorf("%w: role_code and page_code are required", ErrInvalidPermission)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPagePermissionQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare page permission upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, p := range perms {
		if _, err := stmt.ExecContext(ctx, p.RoleCode, p.PageCode, p.CanView, p.CanEdit, p.CanDelete, now); err != nil {
			return fmt.Errorf("failed to upsert page permission %s/%s: %w", p.RoleCode, p.PageCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page permissions: %w", err)
	}
	return nil
}

// scanRole scans a role from a database row
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var department sql.NullString

	if err := scanner.Scan(&role.Code, &role.Name, &department, &role.CreatedAt); err != nil {
		return nil, err
	}
	role.Department = department.String

	return &role, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
