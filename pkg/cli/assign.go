package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func assignCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "assign <email> <role>",
		Short:        "assign a role to a user, replacing any previous role",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			assignment, err := svc.AssignUserRole(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", assignment.Email, assignment.RoleCode)
			return nil
		}),
	}
}

func revokeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "revoke <email>",
		Short:        "remove the role of a user",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			if err := svc.RemoveUserRole(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		}),
	}
}
