package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func permissionCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "inspect and set role permissions",
	}
	cmd.AddCommand(
		permissionListCommand(flags),
		permissionResourceCommand(flags),
		permissionPageCommand(flags),
	)
	return cmd
}

func permissionListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "list <role>",
		Short:        "list the resource and page permissions of a role",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			if _, err := svc.GetRole(ctx, args[0]); err != nil {
				return err
			}
			resources, err := svc.ListResourcePermissions(ctx, args[0])
			if err != nil {
				return err
			}
			pages, err := svc.ListPagePermissions(ctx, args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tCODE\tVIEW\tEDIT\tDELETE\tCOLUMNS")
			for _, p := range resources {
				fmt.Fprintf(tw, "resource\t%s\t%t\t%t\t%t\t%s\n",
					p.ResourceCode, p.CanView, p.CanEdit, p.CanDelete, p.Columns())
			}
			for _, p := range pages {
				fmt.Fprintf(tw, "page\t%s\t%t\t%t\t%t\t\n",
					p.PageCode, p.CanView, p.CanEdit, p.CanDelete)
			}
			return tw.Flush()
		}),
	}
}

func bindFlags(cmd *cobra.Command, flags *rbac.Flags) {
	fs := cmd.Flags()
	fs.BoolVar(&flags.CanView, "view", false, "grant view")
	fs.BoolVar(&flags.CanEdit, "edit", false, "grant edit")
	fs.BoolVar(&flags.CanDelete, "delete", false, "grant delete")
}

func permissionResourceCommand(flags *globalFlags) *cobra.Command {
	var (
		grant   rbac.Flags
		columns []string
	)
	cmd := &cobra.Command{
		Use:          "resource <role> <resource>",
		Short:        "set the permission of a role on a resource",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			if _, err := svc.GetRole(ctx, args[0]); err != nil {
				return err
			}

			perm := rbac.ResourcePermission{
				RoleCode:       args[0],
				ResourceCode:   args[1],
				Flags:          grant,
				AllowedColumns: selectionOf(columns),
			}
			if err := svc.UpsertResourcePermission(ctx, perm); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s view=%t edit=%t delete=%t columns=%s\n",
				perm.RoleCode, perm.ResourceCode, grant.CanView, grant.CanEdit, grant.CanDelete, perm.Columns())
			return nil
		}),
	}
	bindFlags(cmd, &grant)
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "allowed columns, or * for every column")
	return cmd
}

func permissionPageCommand(flags *globalFlags) *cobra.Command {
	var grant rbac.Flags
	cmd := &cobra.Command{
		Use:          "page <role> <page>",
		Short:        "set the permission of a role on a page",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			if _, err := svc.GetRole(ctx, args[0]); err != nil {
				return err
			}

			perm := rbac.PagePermission{RoleCode: args[0], PageCode: args[1], Flags: grant}
			if err := svc.UpsertPagePermission(ctx, perm); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s view=%t edit=%t delete=%t\n",
				perm.RoleCode, perm.PageCode, grant.CanView, grant.CanEdit, grant.CanDelete)
			return nil
		}),
	}
	bindFlags(cmd, &grant)
	return cmd
}

// selectionOf turns a column flag into a selection; "*" anywhere selects every column
func selectionOf(columns []string) rbac.ColumnSelection {
	for _, c := range columns {
		if c == rbac.WildcardColumn {
			return rbac.AllColumns()
		}
	}
	return rbac.ColumnsOf(columns...)
}
