package admin

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/catalog"
	"github.com/platinummonkey/opsboard/pkg/permcache"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newService(t *testing.T, policy rbac.DeletionPolicy) (*Service, *rbac.SQLStore, *permcache.Cache) {
	t.Helper()

	store := rbac.NewSQLStore(rbac.OpenTestDB(t))
	cache, err := permcache.New(store, permcache.Config{Logger: quietLogger()})
	require.NoError(t, err)

	svc := NewService(store, Config{
		Cache:          cache,
		Catalog:        catalog.Default(),
		DeletionPolicy: policy,
		Logger:         quietLogger(),
	})
	return svc, store, cache
}

func TestCreateRole_Duplicate(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)
	ctx := context.Background()

	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "SALES", Name: "Sales"}))

	err := svc.CreateRole(ctx, &rbac.Role{Code: "SALES", Name: "Sales again"})
	assert.ErrorIs(t, err, rbac.ErrDuplicateKey)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Sales", roles[0].Name)
}

func TestCreateRole_EmptyCode(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)

	err := svc.CreateRole(context.Background(), &rbac.Role{Code: "  "})
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
}

func TestCreateRoleFromLabels(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)
	ctx := context.Background()

	role, err := svc.CreateRoleFromLabels(ctx, "Sale   Online", "Trưởng nhóm", "")
	require.NoError(t, err)
	assert.Equal(t, "SALE_ONLINE_LEADER", role.Code)
	assert.Equal(t, "Sale Online Trưởng nhóm", role.Name)
	assert.Equal(t, "Sale   Online", role.Department)

	_, err = svc.CreateRoleFromLabels(ctx, "sale online", "truong nhom", "Other")
	assert.ErrorIs(t, err, rbac.ErrDuplicateKey)

	_, err = svc.CreateRoleFromLabels(ctx, " ", "", "")
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)
}

func TestEnsureAdminRole(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)
	ctx := context.Background()

	first, err := svc.EnsureAdminRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, rbac.DefaultAdminRoleCode, first.Code)

	second, err := svc.EnsureAdminRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestAssignUserRole_OverwritesAndInvalidates(t *testing.T) {
	svc, store, cache := newService(t, rbac.DeletionBlock)
	ctx := context.Background()

	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "A"}))
	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "B"}))

	_, err := svc.AssignUserRole(ctx, "User@Example.com", "A")
	require.NoError(t, err)
	assert.Equal(t, "A", cache.Load(ctx, "user@example.com").RoleCode)

	assignment, err := svc.AssignUserRole(ctx, "user@example.com", "B")
	require.NoError(t, err)
	assert.Equal(t, "B", assignment.RoleCode)

	assignments, err := svc.ListAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "user@example.com", assignments[0].Email)
	assert.Equal(t, "B", assignments[0].RoleCode)

	role, err := store.IdentityRole(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "B", role)

	assert.Equal(t, "B", cache.Load(ctx, "user@example.com").RoleCode)
}

func TestAssignUserRole_UnknownRole(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)

	_, err := svc.AssignUserRole(context.Background(), "user@example.com", "NOPE")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestRemoveUserRole(t *testing.T) {
	svc, _, cache := newService(t, rbac.DeletionBlock)
	ctx := context.Background()

	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "A"}))
	_, err := svc.AssignUserRole(ctx, "user@example.com", "A")
	require.NoError(t, err)
	assert.True(t, cache.Load(ctx, "user@example.com").HasRole())

	require.NoError(t, svc.RemoveUserRole(ctx, "user@example.com"))

	_, err = svc.GetAssignment(ctx, "user@example.com")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assert.False(t, cache.Load(ctx, "user@example.com").HasRole())
}

func seedReferencedRole(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "OPS"}))
	_, err := svc.AssignUserRole(ctx, "ops@example.com", "OPS")
	require.NoError(t, err)
	require.NoError(t, svc.UpsertPagePermission(ctx, rbac.PagePermission{
		RoleCode: "OPS", PageCode: "orders.list", Flags: rbac.Flags{CanView: true},
	}))
}

func TestDeleteRole_Block(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)
	ctx := context.Background()
	seedReferencedRole(t, svc)

	err := svc.DeleteRole(ctx, "OPS")
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)

	_, err = svc.GetRole(ctx, "OPS")
	assert.NoError(t, err)

	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "UNUSED"}))
	assert.NoError(t, svc.DeleteRole(ctx, "UNUSED"))
	assert.ErrorIs(t, svc.DeleteRole(ctx, "UNUSED"), rbac.ErrNotFound)
}

func TestDeleteRole_Cascade(t *testing.T) {
	svc, store, _ := newService(t, rbac.DeletionCascade)
	ctx := context.Background()
	seedReferencedRole(t, svc)

	require.NoError(t, svc.DeleteRole(ctx, "OPS"))

	_, err := store.IdentityRole(ctx, "ops@example.com")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	pages, err := svc.ListPagePermissions(ctx, "OPS")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestDeleteRole_Orphan(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionOrphan)
	ctx := context.Background()
	seedReferencedRole(t, svc)

	require.NoError(t, svc.DeleteRole(ctx, "OPS"))

	_, err := svc.GetRole(ctx, "OPS")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	assignment, err := svc.GetAssignment(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "OPS", assignment.RoleCode)
}

func TestUpsertResourcePermission_Columns(t *testing.T) {
	svc, _, _ := newService(t, rbac.DeletionBlock)
	ctx := context.Background()
	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "A"}))

	universe, ok := catalog.Default().Columns("orders")
	require.True(t, ok)

	err := svc.UpsertResourcePermission(ctx, rbac.ResourcePermission{
		RoleCode: "A", ResourceCode: "orders",
		Flags:          rbac.Flags{CanView: true},
		AllowedColumns: rbac.ColumnsOf(universe...),
	})
	require.NoError(t, err)

	perms, err := svc.ListResourcePermissions(ctx, "A")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.True(t, perms[0].Columns().IsWildcard(), "full column set is stored as wildcard")

	err = svc.UpsertResourcePermission(ctx, rbac.ResourcePermission{
		RoleCode: "A", ResourceCode: "orders", AllowedColumns: rbac.ColumnsOf("salary"),
	})
	assert.ErrorIs(t, err, rbac.ErrInvalidPermission)

	err = svc.UpsertResourcePermission(ctx, rbac.ResourcePermission{
		RoleCode: "A", ResourceCode: "unknown", AllowedColumns: rbac.AllColumns(),
	})
	assert.ErrorIs(t, err, rbac.ErrInvalidPermission)
}

func TestWritesInvalidateCache(t *testing.T) {
	svc, _, cache := newService(t, rbac.DeletionBlock)
	ctx := context.Background()
	require.NoError(t, svc.CreateRole(ctx, &rbac.Role{Code: "A"}))
	_, err := svc.AssignUserRole(ctx, "a@example.com", "A")
	require.NoError(t, err)

	snap := cache.Load(ctx, "a@example.com")
	_, ok := snap.Page("orders.entry")
	require.False(t, ok)

	require.NoError(t, svc.BatchUpsertPagePermissions(ctx, []rbac.PagePermission{
		{RoleCode: "A", PageCode: "orders.entry", Flags: rbac.Flags{CanView: true}},
		{RoleCode: "A", PageCode: "orders.list", Flags: rbac.Flags{CanView: true}},
	}))

	// the stale snapshot is still served until the next load
	stale, ok := cache.Snapshot("a@example.com")
	require.True(t, ok)
	assert.Same(t, snap, stale)

	fresh := cache.Load(ctx, "a@example.com")
	perm, ok := fresh.Page("orders.entry")
	require.True(t, ok)
	assert.True(t, perm.CanView)
}

func TestStoreFailurePropagates(t *testing.T) {
	store := rbac.NewSQLStore(rbac.OpenTestDB(t))
	svc := NewService(store, Config{Logger: quietLogger()})
	require.NoError(t, store.DB().Close())

	err := svc.CreateRole(context.Background(), &rbac.Role{Code: "A"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, rbac.ErrDuplicateKey)
}
