package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the opsboard-rbac command tree
func NewRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:          "opsboard-rbac",
		Short:        "opsboard role based access control",
		SilenceUsage: true,
		Long: `opsboard-rbac manages roles, user assignments and permissions in the
permission store, answers access checks and serves the administration API.

Configuration is read from OPSBOARD_* environment variables; the persistent
flags override them.`,
	}

	fs := root.PersistentFlags()
	fs.StringVar(&flags.LogLevel, "log-level", "", "log level (overrides OPSBOARD_LOG_LEVEL)")
	fs.StringVar(&flags.LogFormat, "log-format", "", "log format, text or json (overrides OPSBOARD_LOG_FORMAT)")
	fs.StringVar(&flags.DBDriver, "db-driver", "", "database driver, postgres or sqlite3 (overrides OPSBOARD_DB_DRIVER)")
	fs.StringVar(&flags.DBURL, "db-url", "", "database URL (overrides OPSBOARD_DB_URL)")
	fs.BoolVar(&flags.Migrate, "migrate", false, "run migrations before the command")

	root.AddCommand(
		migrateCommand(&flags),
		ensureAdminCommand(&flags),
		roleCommand(&flags),
		assignCommand(&flags),
		revokeCommand(&flags),
		permissionCommand(&flags),
		moduleCommand(&flags),
		checkCommand(&flags),
		auditCommand(&flags),
		serveCommand(&flags),
	)

	return root
}

// withEnv wraps fn so it runs against an opened env that is closed afterwards
func withEnv(flags *globalFlags, fn func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		e, err := open(ctx, flags, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := e.Close(context.WithoutCancel(ctx)); err == nil {
				err = cerr
			}
		}()

		return fn(ctx, cmd, e, args)
	}
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
