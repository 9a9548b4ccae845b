package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func moduleCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "inspect and bulk toggle module permissions",
	}
	cmd.AddCommand(
		moduleStateCommand(flags),
		moduleToggleCommand(flags),
		columnToggleCommand(flags),
	)
	return cmd
}

func parseAction(s string) (rbac.Action, error) {
	action := rbac.Action(s)
	if !action.Valid() {
		return "", fmt.Errorf("%w: action %q", rbac.ErrInvalidPermission, s)
	}
	return action, nil
}

func moduleStateCommand(flags *globalFlags) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:          "state <role> <module>",
		Short:        "report whether an action is enabled on all, some or none of a module's pages",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			act, err := parseAction(action)
			if err != nil {
				return err
			}
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			editor, err := svc.Editor(ctx, args[0])
			if err != nil {
				return err
			}
			state, err := editor.ModuleState(args[1], act)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		}),
	}
	cmd.Flags().StringVar(&action, "action", string(rbac.ActionView), "view, edit or delete")
	return cmd
}

func moduleToggleCommand(flags *globalFlags) *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:          "toggle <role> <module>",
		Short:        "enable an action on every page of a module, or disable it when all pages have it",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			act, err := parseAction(action)
			if err != nil {
				return err
			}
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			editor, err := svc.Editor(ctx, args[0])
			if err != nil {
				return err
			}
			enabled, err := editor.ToggleModule(ctx, args[1], act)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s=%t\n", args[0], args[1], act, enabled)
			return nil
		}),
	}
	cmd.Flags().StringVar(&action, "action", string(rbac.ActionView), "view, edit or delete")
	return cmd
}

func columnToggleCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:          "columns <role> <resource> [column]",
		Short:        "toggle one column of a resource, or all of them when no column is given",
		SilenceUsage: true,
		Args:         cobra.RangeArgs(2, 3),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			svc, err := e.service(nil)
			if err != nil {
				return err
			}
			editor, err := svc.Editor(ctx, args[0])
			if err != nil {
				return err
			}

			var sel rbac.ColumnSelection
			if len(args) == 3 {
				sel, err = editor.ToggleColumn(ctx, args[1], args[2])
			} else {
				sel, err = editor.ToggleAllColumns(ctx, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s columns=%s\n", args[0], args[1], sel)
			return nil
		}),
	}
}

