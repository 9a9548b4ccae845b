package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTestDB points the configuration at a fresh SQLite file
func useTestDB(t *testing.T) {
	t.Helper()
	t.Setenv("OPSBOARD_DB_DRIVER", "sqlite3")
	t.Setenv("OPSBOARD_DB_URL", "file:"+filepath.Join(t.TempDir(), "rbac.db"))
	t.Setenv("OPSBOARD_LOG_LEVEL", "error")
	t.Setenv("OPSBOARD_OTEL_ENABLED", "false")
	t.Setenv("OPSBOARD_REDIS_URL", "")
	t.Setenv("OPSBOARD_CACHE_FLUSH_SCHEDULE", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "opsboard-rbac %v", args)
	return out
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"migrate", "ensure-admin", "role", "assign", "revoke", "permission", "module", "check", "audit", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"log-level", "log-format", "db-driver", "db-url", "migrate"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestMigrate(t *testing.T) {
	useTestDB(t)

	assert.Equal(t, "migrations applied\n", mustExecute(t, "migrate"))
	// idempotent
	assert.Equal(t, "migrations applied\n", mustExecute(t, "migrate"))
}

func TestInvalidConfiguration(t *testing.T) {
	useTestDB(t)

	_, err := execute(t, "migrate", "--db-driver", "oracle")
	assert.Error(t, err)

	t.Setenv("OPSBOARD_DB_URL", "")
	_, err = execute(t, "migrate")
	assert.Error(t, err)

	url := "file:" + filepath.Join(t.TempDir(), "flag.db")
	assert.Equal(t, "migrations applied\n", mustExecute(t, "migrate", "--db-url", url))
}

func TestRoleLifecycle(t *testing.T) {
	useTestDB(t)
	mustExecute(t, "migrate")

	assert.Equal(t, "ADMIN\n", mustExecute(t, "ensure-admin"))
	assert.Equal(t, "ADMIN\n", mustExecute(t, "ensure-admin"))

	assert.Equal(t, "SUPPORT\n", mustExecute(t, "role", "create", "SUPPORT", "--name", "Support"))
	assert.Equal(t, "SALES_LEADER\n", mustExecute(t, "role", "create", "--department", "Sales", "--position", "Team Lead"))

	_, err := execute(t, "role", "create", "SUPPORT")
	assert.Error(t, err, "duplicate code")
	_, err = execute(t, "role", "create")
	assert.Error(t, err, "code or labels required")

	out := mustExecute(t, "role", "list")
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "SALES_LEADER")
	assert.Contains(t, out, "Support")

	out = mustExecute(t, "role", "list", "--json")
	assert.Contains(t, out, `"code": "SUPPORT"`)

	mustExecute(t, "assign", "Agent@Example.com", "SUPPORT")
	_, err = execute(t, "role", "delete", "SUPPORT")
	assert.Error(t, err, "blocked while assigned")

	assert.Equal(t, "deleted SUPPORT\n", mustExecute(t, "role", "delete", "SUPPORT", "--policy", "cascade"))
	_, err = execute(t, "role", "delete", "SUPPORT")
	assert.Error(t, err)
	_, err = execute(t, "role", "delete", "SALES_LEADER", "--policy", "shred")
	assert.Error(t, err)
}

func TestAssignAndRevoke(t *testing.T) {
	useTestDB(t)
	t.Setenv("OPSBOARD_DB_MIGRATE", "true")
	mustExecute(t, "role", "create", "SUPPORT")

	assert.Equal(t, "agent@example.com -> SUPPORT\n", mustExecute(t, "assign", "Agent@Example.com", "SUPPORT"))

	_, err := execute(t, "assign", "agent@example.com", "MISSING")
	assert.Error(t, err)

	assert.Equal(t, "revoked agent@example.com\n", mustExecute(t, "revoke", "agent@example.com"))
	_, err = execute(t, "assign", "agent@example.com")
	assert.Error(t, err, "role argument required")
}

func TestPermissionsAndCheck(t *testing.T) {
	useTestDB(t)
	t.Setenv("OPSBOARD_DB_MIGRATE", "true")
	mustExecute(t, "role", "create", "SUPPORT")
	mustExecute(t, "assign", "agent@example.com", "SUPPORT")

	out := mustExecute(t, "permission", "resource", "SUPPORT", "orders", "--view", "--columns", "order_no,status")
	assert.Equal(t, "SUPPORT orders view=true edit=false delete=false columns=[order_no status]\n", out)

	_, err := execute(t, "permission", "resource", "SUPPORT", "orders", "--columns", "ssn")
	assert.Error(t, err, "unknown column")
	_, err = execute(t, "permission", "resource", "MISSING", "orders", "--view")
	assert.Error(t, err, "unknown role")

	mustExecute(t, "permission", "page", "SUPPORT", "orders.list", "--view", "--edit")

	out = mustExecute(t, "permission", "list", "SUPPORT")
	assert.Contains(t, out, "orders.list")
	assert.Contains(t, out, "[order_no status]")

	out = mustExecute(t, "check", "agent@example.com", "orders.list", "--action", "edit")
	assert.Equal(t, "role=SUPPORT bypassed=false orders.list edit=true\n", out)

	out = mustExecute(t, "check", "agent@example.com", "orders", "--column", "amount")
	assert.Equal(t, "role=SUPPORT bypassed=false orders view=true\ncolumn amount=false\n", out)

	out = mustExecute(t, "check", "nobody@example.com", "orders.list")
	assert.Equal(t, "role= bypassed=false orders.list view=false\n", out)

	t.Setenv("OPSBOARD_LEGACY_SUPERUSER_BYPASS", "true")
	out = mustExecute(t, "check", "nobody@example.com", "orders.list", "--legacy-superuser")
	assert.Equal(t, "role= bypassed=true orders.list view=true\n", out)

	_, err = execute(t, "check", "agent@example.com", "orders.list", "--action", "approve")
	assert.Error(t, err)
}

func TestModuleCommands(t *testing.T) {
	useTestDB(t)
	t.Setenv("OPSBOARD_DB_MIGRATE", "true")
	mustExecute(t, "role", "create", "SUPPORT")
	mustExecute(t, "permission", "page", "SUPPORT", "orders.list", "--view")

	assert.Equal(t, "some\n", mustExecute(t, "module", "state", "SUPPORT", "orders"))
	assert.Equal(t, "SUPPORT orders view=true\n", mustExecute(t, "module", "toggle", "SUPPORT", "orders"))
	assert.Equal(t, "all\n", mustExecute(t, "module", "state", "SUPPORT", "orders"))
	assert.Equal(t, "SUPPORT orders view=false\n", mustExecute(t, "module", "toggle", "SUPPORT", "orders"))
	assert.Equal(t, "none\n", mustExecute(t, "module", "state", "SUPPORT", "orders", "--action", "edit"))

	_, err := execute(t, "module", "toggle", "SUPPORT", "warehouse")
	assert.Error(t, err)
	_, err = execute(t, "module", "toggle", "MISSING", "orders")
	assert.Error(t, err)

	assert.Equal(t, "SUPPORT customers columns=*\n", mustExecute(t, "module", "columns", "SUPPORT", "customers"))
	assert.Equal(t, "SUPPORT customers columns=[address email name segment]\n",
		mustExecute(t, "module", "columns", "SUPPORT", "customers", "phone"))
	assert.Equal(t, "SUPPORT customers columns=*\n", mustExecute(t, "module", "columns", "SUPPORT", "customers"))
	assert.Equal(t, "SUPPORT customers columns=[]\n", mustExecute(t, "module", "columns", "SUPPORT", "customers"))

	_, err = execute(t, "module", "columns", "SUPPORT", "customers", "ssn")
	assert.Error(t, err)
}

func TestAuditCommand(t *testing.T) {
	useTestDB(t)
	t.Setenv("OPSBOARD_DB_MIGRATE", "true")
	mustExecute(t, "role", "create", "SUPPORT")
	mustExecute(t, "assign", "agent@example.com", "SUPPORT")
	_, err := execute(t, "role", "create", "SUPPORT")
	require.Error(t, err)

	out := mustExecute(t, "audit")
	assert.Contains(t, out, "EVENT")
	assert.Contains(t, out, "role.assign")
	assert.Contains(t, out, "failure")

	out = mustExecute(t, "audit", "--type", "role.assign", "-o", "csv")
	assert.Equal(t, 2, strings.Count(out, "\n"), out)
	assert.Contains(t, out, "agent@example.com")

	out = mustExecute(t, "audit", "--role", "MISSING", "-o", "json")
	assert.Equal(t, "[]\n", out)

	_, err = execute(t, "audit", "-o", "xml")
	assert.Error(t, err)

	t.Setenv("OPSBOARD_AUDIT_ENABLED", "false")
	_, err = execute(t, "audit")
	assert.Error(t, err, "audit trail not searchable without the table")
}
