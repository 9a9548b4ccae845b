package rbac

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/opsboard/pkg/rbac"

// TracingStore wraps a Store and records one span per call
type TracingStore struct {
	next   Store
	tracer trace.Tracer
}

var _ Store = (*TracingStore)(nil)

// NewTracingStore wraps next. A nil provider uses the global tracer provider.
func NewTracingStore(next Store, tp trace.TracerProvider) *TracingStore {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingStore{next: next, tracer: tp.Tracer(tracerName)}
}

func (t *TracingStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "rbac.store."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracingStore) IdentityRole(ctx context.Context, email string) (role string, err error) {
	ctx, span := t.start(ctx, "IdentityRole")
	defer func() { end(span, err) }()
	return t.next.IdentityRole(ctx, email)
}

func (t *TracingStore) ListResourcePermissions(ctx context.Context, roleCode string) (perms []ResourcePermission, err error) {
	ctx, span := t.start(ctx, "ListResourcePermissions", attribute.String("rbac.role_code", roleCode))
	defer func() { end(span, err) }()
	return t.next.ListResourcePermissions(ctx, roleCode)
}

func (t *TracingStore) ListPagePermissions(ctx context.Context, roleCode string) (perms []PagePermission, err error) {
	ctx, span := t.start(ctx, "ListPagePermissions", attribute.String("rbac.role_code", roleCode))
	defer func() { end(span, err) }()
	return t.next.ListPagePermissions(ctx, roleCode)
}

func (t *TracingStore) CreateRole(ctx context.Context, role *Role) (err error) {
	ctx, span := t.start(ctx, "CreateRole", attribute.String("rbac.role_code", role.Code))
	defer func() { end(span, err) }()
	return t.next.CreateRole(ctx, role)
}

func (t *TracingStore) GetRole(ctx context.Context, code string) (role *Role, err error) {
	ctx, span := t.start(ctx, "GetRole", attribute.String("rbac.role_code", code))
	defer func() { end(span, err) }()
	return t.next.GetRole(ctx, code)
}

func (t *TracingStore) ListRoles(ctx context.Context) (roles []Role, err error) {
	ctx, span := t.start(ctx, "ListRoles")
	defer func() { end(span, err) }()
	return t.next.ListRoles(ctx)
}

func (t *TracingStore) DeleteRole(ctx context.Context, code string, policy DeletionPolicy) (err error) {
	ctx, span := t.start(ctx, "DeleteRole",
		attribute.String("rbac.role_code", code),
		attribute.String("rbac.deletion_policy", string(policy)),
	)
	defer func() { end(span, err) }()
	return t.next.DeleteRole(ctx, code, policy)
}

func (t *TracingStore) AssignUserRole(ctx context.Context, email, roleCode string) (a *UserRoleAssignment, err error) {
	ctx, span := t.start(ctx, "AssignUserRole", attribute.String("rbac.role_code", roleCode))
	defer func() { end(span, err) }()
	return t.next.AssignUserRole(ctx, email, roleCode)
}

func (t *TracingStore) RemoveUserRole(ctx context.Context, email string) (err error) {
	ctx, span := t.start(ctx, "RemoveUserRole")
	defer func() { end(span, err) }()
	return t.next.RemoveUserRole(ctx, email)
}

func (t *TracingStore) GetAssignment(ctx context.Context, email string) (a *UserRoleAssignment, err error) {
	ctx, span := t.start(ctx, "GetAssignment")
	defer func() { end(span, err) }()
	return t.next.GetAssignment(ctx, email)
}

func (t *TracingStore) ListAssignments(ctx context.Context) (out []UserRoleAssignment, err error) {
	ctx, span := t.start(ctx, "ListAssignments")
	defer func() { end(span, err) }()
	return t.next.ListAssignments(ctx)
}

func (t *TracingStore) UpsertResourcePermission(ctx context.Context, perm ResourcePermission) (err error) {
	ctx, span := t.start(ctx, "UpsertResourcePermission",
		attribute.String("rbac.role_code", perm.RoleCode),
		attribute.String("rbac.resource_code", perm.ResourceCode),
	)
	defer func() { end(span, err) }()
	return t.next.UpsertResourcePermission(ctx, perm)
}

func (t *TracingStore) UpsertPagePermission(ctx context.Context, perm PagePermission) (err error) {
	ctx, span := t.start(ctx, "UpsertPagePermission",
		attribute.String("rbac.role_code", perm.RoleCode),
		attribute.String("rbac.page_code", perm.PageCode),
	)
	defer func() { end(span, err) }()
	return t.next.UpsertPagePermission(ctx, perm)
}

func (t *TracingStore) BatchUpsertPagePermissions(ctx context.Context, perms []PagePermission) (err error) {
	ctx, span := t.start(ctx, "BatchUpsertPagePermissions", attribute.Int("rbac.batch_size", len(perms)))
	defer func() { end(span, err) }()
	return t.next.BatchUpsertPagePermissions(ctx, perms)
}
