package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func migrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "apply pending permission store migrations",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			if err := rbac.RunMigrations(ctx, e.db, e.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	}
}

func ensureAdminCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "ensure-admin",
		Short:        "create the reserved admin role when it is missing",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			role, err := svc.EnsureAdminRole(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), role.Code)
			return nil
		}),
	}
}
