// Package admin is the administration surface of the authorization engine:
// role lifecycle, user assignment and permission writes.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/audit"
	"github.com/platinummonkey/opsboard/pkg/catalog"
	"github.com/platinummonkey/opsboard/pkg/matrix"
	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
	"github.com/platinummonkey/opsboard/pkg/rolecode"
)

// Service runs administration writes against the store and keeps the
// permission cache coherent with them
type Service struct {
	store          rbac.Store
	cache          *permcache.Cache
	catalog        atomic.Pointer[catalog.Catalog]
	deletionPolicy rbac.DeletionPolicy
	adminRoleCode  string
	audit          audit.Logger
	logger         logrus.FieldLogger
}

// ErrAuditUnavailable is returned by SearchAudit when the audit logger
// cannot be searched
var ErrAuditUnavailable = errors.New("audit trail is not searchable")

// Config holds service configuration
type Config struct {
	// Cache is invalidated after every write. Optional.
	Cache *permcache.Cache

	// Catalog validates resource columns. Optional.
	Catalog *catalog.Catalog

	DeletionPolicy rbac.DeletionPolicy
	AdminRoleCode  string

	// Audit records every write. Optional.
	Audit audit.Logger

	Logger logrus.FieldLogger
}

// NewService creates an administration service
func NewService(store rbac.Store, cfg Config) *Service {
	if cfg.DeletionPolicy == "" {
		cfg.DeletionPolicy = rbac.DeletionBlock
	}
	if cfg.AdminRoleCode == "" {
		cfg.AdminRoleCode = rbac.DefaultAdminRoleCode
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop()
	}

	s := &Service{
		store:          store,
		cache:          cfg.Cache,
		deletionPolicy: cfg.DeletionPolicy,
		adminRoleCode:  cfg.AdminRoleCode,
		audit:          cfg.Audit,
		logger:         observability.OrStandard(cfg.Logger),
	}
	s.catalog.Store(cfg.Catalog)
	return s
}

// CreateRole creates a role. An existing code yields rbac.ErrDuplicateKey.
func (s *Service) CreateRole(ctx context.Context, role *rbac.Role) error {
	role.Code = strings.TrimSpace(role.Code)
	if role.Name == "" {
		role.Name = role.Code
	}

	err := s.store.CreateRole(ctx, role)
	s.record(ctx, audit.EventTypeRoleCreate, role.Code, "", err, map[string]interface{}{
		"name":       role.Name,
		"department": role.Department,
	})
	if err != nil {
		return err
	}

	s.logger.WithField("role", role.Code).Info("Role created")
	return nil
}

// CreateRoleFromLabels derives the role code from department and position
// labels and creates the role
func (s *Service) CreateRoleFromLabels(ctx context.Context, department, position, name string) (*rbac.Role, error) {
	code := rolecode.Derive(department, position)
	if code == "" {
		return nil, fmt.Errorf("%w: department and position are both empty", rbac.ErrInvalidRole)
	}
	if name == "" {
		name = strings.TrimSpace(strings.Join(strings.Fields(department+" "+position), " "))
	}

	role := &rbac.Role{Code: code, Name: name, Department: strings.TrimSpace(department)}
	if err := s.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// EnsureAdminRole creates the reserved admin role when it does not exist
func (s *Service) EnsureAdminRole(ctx context.Context) (*rbac.Role, error) {
	role, err := s.store.GetRole(ctx, s.adminRoleCode)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, rbac.ErrNotFound) {
		return nil, err
	}

	role = &rbac.Role{Code: s.adminRoleCode, Name: "Administrator"}
	err = s.CreateRole(ctx, role)
	if errors.Is(err, rbac.ErrDuplicateKey) {
		// created concurrently
		return s.store.GetRole(ctx, s.adminRoleCode)
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole deletes a role using the configured deletion policy
func (s *Service) DeleteRole(ctx context.Context, code string) error {
	err := s.store.DeleteRole(ctx, code, s.deletionPolicy)
	s.record(ctx, audit.EventTypeRoleDelete, code, "", err, map[string]interface{}{
		"policy": string(s.deletionPolicy),
	})
	if err != nil {
		return err
	}

	s.invalidate()
	s.logger.WithFields(logrus.Fields{
		"role":   code,
		"policy": s.deletionPolicy,
	}).Info("Role deleted")
	return nil
}

func (s *Service) GetRole(ctx context.Context, code string) (*rbac.Role, error) {
	return s.store.GetRole(ctx, code)
}

func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.store.ListRoles(ctx)
}

// AssignUserRole sets the role of email, replacing any previous one
func (s *Service) AssignUserRole(ctx context.Context, email, roleCode string) (*rbac.UserRoleAssignment, error) {
	assignment, err := s.store.AssignUserRole(ctx, email, roleCode)
	s.record(ctx, audit.EventTypeRoleAssign, roleCode, normalizeEmail(email), err, nil)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateIdentity(assignment.Email)
	}
	s.logger.WithFields(logrus.Fields{
		"email": assignment.Email,
		"role":  roleCode,
	}).Info("Role assigned")
	return assignment, nil
}

// RemoveUserRole removes the role of email
func (s *Service) RemoveUserRole(ctx context.Context, email string) error {
	err := s.store.RemoveUserRole(ctx, email)
	s.record(ctx, audit.EventTypeRoleRevoke, "", normalizeEmail(email), err, nil)
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.InvalidateIdentity(email)
	}
	s.logger.WithField("email", email).Info("Role removed")
	return nil
}

func (s *Service) GetAssignment(ctx context.Context, email string) (*rbac.UserRoleAssignment, error) {
	return s.store.GetAssignment(ctx, email)
}

func (s *Service) ListAssignments(ctx context.Context) ([]rbac.UserRoleAssignment, error) {
	return s.store.ListAssignments(ctx)
}

// ListResourcePermissions returns the resource rows of roleCode
func (s *Service) ListResourcePermissions(ctx context.Context, roleCode string) ([]rbac.ResourcePermission, error) {
	return s.store.ListResourcePermissions(ctx, roleCode)
}

// ListPagePermissions returns the page rows of roleCode
func (s *Service) ListPagePermissions(ctx context.Context, roleCode string) ([]rbac.PagePermission, error) {
	return s.store.ListPagePermissions(ctx, roleCode)
}

// UpsertResourcePermission writes a resource row. When a catalog is
// configured, explicit columns must belong to the resource and a set covering
// all of them is stored as Wildcard.
func (s *Service) UpsertResourcePermission(ctx context.Context, perm rbac.ResourcePermission) error {
	perm, err := s.checkColumns(perm)
	if err != nil {
		return err
	}

	err = s.store.UpsertResourcePermission(ctx, perm)
	s.record(ctx, audit.EventTypeResourcePermission, perm.RoleCode, perm.ResourceCode, err, map[string]interface{}{
		"flags":   perm.Flags,
		"columns": fmt.Sprint(perm.Columns()),
	})
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// UpsertPagePermission writes a page row
func (s *Service) UpsertPagePermission(ctx context.Context, perm rbac.PagePermission) error {
	err := s.store.UpsertPagePermission(ctx, perm)
	s.record(ctx, audit.EventTypePagePermission, perm.RoleCode, perm.PageCode, err, map[string]interface{}{
		"flags": perm.Flags,
	})
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// BatchUpsertPagePermissions writes page rows all-or-nothing
func (s *Service) BatchUpsertPagePermissions(ctx context.Context, perms []rbac.PagePermission) error {
	err := s.store.BatchUpsertPagePermissions(ctx, perms)
	after := make(map[string]interface{}, len(perms))
	roleCode := ""
	for _, perm := range perms {
		after[perm.PageCode] = perm.Flags
		roleCode = perm.RoleCode
	}
	s.record(ctx, audit.EventTypePageBatch, roleCode, "", err, after)
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}

func (s *Service) checkColumns(perm rbac.ResourcePermission) (rbac.ResourcePermission, error) {
	cat := s.catalog.Load()
	if cat == nil {
		return perm, nil
	}

	resource, ok := cat.Resource(perm.ResourceCode)
	if !ok {
		return perm, fmt.Errorf("%w: unknown resource %s", rbac.ErrInvalidPermission, perm.ResourceCode)
	}
	if explicit, ok := perm.Columns().(rbac.ExplicitColumns); ok {
		for _, col := range explicit.Columns() {
			if !resource.HasColumn(col) {
				return perm, fmt.Errorf("%w: unknown column %s.%s", rbac.ErrInvalidPermission, perm.ResourceCode, col)
			}
		}
	}

	perm.AllowedColumns = matrix.Canonical(perm.Columns(), resource.Columns)
	return perm, nil
}

// record writes an audit event for a write that finished with cause
func (s *Service) record(ctx context.Context, eventType audit.EventType, roleCode, subject string, cause error, after map[string]interface{}) {
	status := audit.EventStatusSuccess
	if cause != nil {
		status = audit.EventStatusFailure
	}

	event := audit.NewEvent(ctx, eventType, status)
	event.RoleCode = roleCode
	event.Subject = subject
	event.Message = string(eventType)
	if after != nil {
		event.Changes = &audit.ChangeDetails{After: after}
	}
	if cause != nil {
		event.ErrorMessage = cause.Error()
	}

	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("Failed to record audit event")
	}
}

// SearchAudit returns recorded administration events matching filter
func (s *Service) SearchAudit(ctx context.Context, filter audit.Filter) ([]*audit.Event, error) {
	searcher, ok := s.audit.(audit.Searcher)
	if !ok {
		return nil, ErrAuditUnavailable
	}
	return searcher.Search(ctx, filter)
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

// Editor returns a permission matrix editor for roleCode loaded with the
// role's current rows
func (s *Service) Editor(ctx context.Context, roleCode string, opts ...matrix.Option) (*matrix.Editor, error) {
	cat := s.catalog.Load()
	if cat == nil {
		return nil, errors.New("admin: matrix editing requires a catalog")
	}
	if _, err := s.store.GetRole(ctx, roleCode); err != nil {
		return nil, err
	}

	opts = append([]matrix.Option{
		matrix.WithCache(s.cache),
		matrix.WithLogger(s.logger),
		matrix.WithAudit(s.audit),
	}, opts...)

	editor := matrix.NewEditor(s.store, cat, roleCode, opts...)
	if err := editor.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load permission matrix: %w", err)
	}
	return editor, nil
}

// Catalog returns the catalog the service validates against, or nil
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog.Load()
}

// SetCatalog replaces the catalog used by later writes and editors
func (s *Service) SetCatalog(cat *catalog.Catalog) {
	s.catalog.Store(cat)
	s.logger.WithFields(logrus.Fields{
		"modules":   len(cat.Modules),
		"resources": len(cat.Resources),
	}).Info("Catalog replaced")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
