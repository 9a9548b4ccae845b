package rbac

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateKey is returned when a role code already exists
	ErrDuplicateKey = errors.New("rbac: duplicate key")

	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("rbac: not found")

	// ErrRoleInUse is returned when deleting a role that is still referenced
	// and the deletion policy is DeletionBlock
	ErrRoleInUse = errors.New("rbac: role is still referenced")

	// ErrInvalidRole is returned when a role fails validation
	ErrInvalidRole = errors.New("rbac: invalid role")

	// ErrInvalidPermission is returned when a permission row fails validation
	ErrInvalidPermission = errors.New("rbac: invalid permission")
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a primary key or unique constraint
// failure from either supported driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}
