package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func roleCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "manage roles",
	}
	cmd.AddCommand(
		roleCreateCommand(flags),
		roleListCommand(flags),
		roleDeleteCommand(flags),
	)
	return cmd
}

type roleCreateFlags struct {
	Name       string
	Department string
	Position   string
}

func roleCreateCommand(flags *globalFlags) *cobra.Command {
	var f roleCreateFlags
	cmd := &cobra.Command{
		Use:          "create [code]",
		Short:        "create a role from a code or from department and position labels",
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}

			var role *rbac.Role
			switch {
			case len(args) == 1:
				role = &rbac.Role{Code: args[0], Name: f.Name, Department: f.Department}
				err = svc.CreateRole(ctx, role)
			case f.Department != "" || f.Position != "":
				role, err = svc.CreateRoleFromLabels(ctx, f.Department, f.Position, f.Name)
			default:
				return fmt.Errorf("either a role code or --department/--position is required")
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), role.Code)
			return nil
		}),
	}

	fs := cmd.Flags()
	fs.StringVar(&f.Name, "name", "", "display name")
	fs.StringVar(&f.Department, "department", "", "department label")
	fs.StringVar(&f.Position, "position", "", "position label")

	return cmd
}

func roleListCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "list roles",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			roles, err := e.store.ListRoles(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), roles)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tDEPARTMENT")
			for _, role := range roles {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", role.Code, role.Name, role.Department)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func roleDeleteCommand(flags *globalFlags) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:          "delete <code>",
		Short:        "delete a role",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			if policy != "" {
				p, err := rbac.ParseDeletionPolicy(policy)
				if err != nil {
					return err
				}
				e.cfg.Authz.DeletionPolicy = p
			}

			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			if err := svc.DeleteRole(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}
	cmd.Flags().StringVar(&policy, "policy", "", "block, cascade or orphan (overrides OPSBOARD_ROLE_DELETION_POLICY)")
	return cmd
}
