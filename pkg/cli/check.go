package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/opsboard/pkg/authz"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

type checkFlags struct {
	Action          string
	LegacySuperuser bool
	Column          string
}

func checkCommand(flags *globalFlags) *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:          "check <email> <code>",
		Short:        "resolve an access decision for a user on a page or resource",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(2),
		RunE: withEnv(flags, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			action, err := parseAction(f.Action)
			if err != nil {
				return err
			}
			cache, err := e.cache(nil)
			if err != nil {
				return err
			}

			identity := rbac.Identity{Email: args[0], LegacySuperuser: f.LegacySuperuser}
			resolver := authz.NewResolver(cache, identity, authz.WithBypassChain(e.bypass()))
			resolver.Load(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "role=%s bypassed=%t %s %s=%t\n",
				resolver.Role(), resolver.IsBypassed(), args[1], action, resolver.Can(args[1], action))
			if f.Column != "" {
				fmt.Fprintf(out, "column %s=%t\n", f.Column, resolver.IsColumnAllowed(args[1], f.Column))
			}
			return nil
		}),
	}

	fs := cmd.Flags()
	fs.StringVar(&f.Action, "action", string(rbac.ActionView), "view, edit or delete")
	fs.BoolVar(&f.LegacySuperuser, "legacy-superuser", false, "carry the legacy superuser flag")
	fs.StringVar(&f.Column, "column", "", "also check visibility of this resource column")
	return cmd
}
